// Package users handles account registration and activation.
package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/plaenen/shopcore/pkg/validators"
)

var (
	// ErrUserNotFound is returned when no account matches.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registering an address that already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidToken is returned for unknown or already used activation tokens.
	ErrInvalidToken = errors.New("invalid activation token")
)

// User is a stored account.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	ActivationToken string
	CreatedAt       time.Time
	ActivatedAt     time.Time
}

// Active reports whether the account completed activation.
func (u User) Active() bool {
	return !u.ActivatedAt.IsZero()
}

// View returns the public representation of u.
func (u User) View() UserView {
	return UserView{
		ID:          u.ID,
		Email:       u.Email,
		Active:      u.Active(),
		CreatedAt:   u.CreatedAt,
		ActivatedAt: u.ActivatedAt,
	}
}

// UserView is what queries and commands return; it never carries credentials.
type UserView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// NormalizeEmail lowercases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Notifier delivers activation tokens to new users.
type Notifier interface {
	SendActivation(ctx context.Context, email, token string) error
}

// LogNotifier writes activation tokens to a logger instead of sending mail.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier logging to logger, or slog.Default when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendActivation implements Notifier.
func (n *LogNotifier) SendActivation(ctx context.Context, email, token string) error {
	n.logger.InfoContext(ctx, "activation email queued",
		slog.String("email", validators.MaskEmail(email)),
		slog.String("activation_token", token),
	)
	return nil
}
