package users

import (
	"context"
	"fmt"
	"time"

	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/idgen"
	"github.com/plaenen/shopcore/pkg/password"
	"github.com/plaenen/shopcore/pkg/validators"
)

// RegisterUserCommand creates an inactive account and sends its activation token.
type RegisterUserCommand struct {
	Email       string
	Password    string
	AcceptTerms bool
}

// Validate checks the address, password strength and terms acceptance.
func (c RegisterUserCommand) Validate() error {
	return validators.NewBuilder().
		Add(validators.ValidateEmail("email", NormalizeEmail(c.Email))).
		Add(validators.ValidatePassword("password", c.Password)).
		Add(validators.ValidateAccepted("accept_terms", c.AcceptTerms)).
		Err()
}

// RegisterUserCommandHandler serves RegisterUserCommand.
type RegisterUserCommandHandler struct {
	repo     Repository
	notifier Notifier
	cost     int
	now      func() time.Time
}

// NewRegisterUserCommandHandler creates the handler hashing passwords with the given
// bcrypt cost.
func NewRegisterUserCommandHandler(repo Repository, notifier Notifier, cost int) *RegisterUserCommandHandler {
	return &RegisterUserCommandHandler{repo: repo, notifier: notifier, cost: cost, now: time.Now}
}

// Handle stores the account and notifies the user.
func (h *RegisterUserCommandHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (UserView, error) {
	hash, err := password.Hash(cmd.Password, password.WithCost(h.cost))
	if err != nil {
		return UserView{}, err
	}

	u := User{
		ID:              idgen.NewUUID(),
		Email:           NormalizeEmail(cmd.Email),
		PasswordHash:    hash,
		ActivationToken: idgen.NewUUID(),
		CreatedAt:       h.now().UTC(),
	}
	if err := h.repo.Create(ctx, u); err != nil {
		return UserView{}, err
	}
	if err := h.notifier.SendActivation(ctx, u.Email, u.ActivationToken); err != nil {
		return UserView{}, fmt.Errorf("send activation: %w", err)
	}
	return u.View(), nil
}

// ActivateUserCommand activates the account owning Token.
type ActivateUserCommand struct {
	Token string
}

// Validate checks the token shape.
func (c ActivateUserCommand) Validate() error {
	b := validators.NewBuilder()
	if !idgen.ValidUUID(c.Token) {
		b.Add(validators.NewValidationResult(false, "token",
			validators.WithMaskedValue(c.Token),
			validators.WithValidationCode(validators.ValidationCodeInvalid),
			validators.WithMessage("Activation token is malformed."),
			validators.WithSuggestedAction("Copy the complete token from the activation email.")))
	}
	return b.Err()
}

// ActivateUserCommandHandler serves ActivateUserCommand.
type ActivateUserCommandHandler struct {
	repo Repository
	now  func() time.Time
}

// NewActivateUserCommandHandler creates the handler.
func NewActivateUserCommandHandler(repo Repository) *ActivateUserCommandHandler {
	return &ActivateUserCommandHandler{repo: repo, now: time.Now}
}

// Handle consumes the token. A token works once.
func (h *ActivateUserCommandHandler) Handle(ctx context.Context, cmd ActivateUserCommand) (UserView, error) {
	u, err := h.repo.Activate(ctx, cmd.Token, h.now().UTC())
	if err != nil {
		return UserView{}, err
	}
	return u.View(), nil
}

// DisplayUserQuery fetches an account by ID or, when ID is empty, by Email. Results
// are not cached: activation state must be read fresh.
type DisplayUserQuery struct {
	ID    string
	Email string
}

// Validate requires one of the lookup keys.
func (q DisplayUserQuery) Validate() error {
	if q.ID == "" {
		return validators.NewBuilder().Add(validators.ValidateEmail("email", NormalizeEmail(q.Email))).Err()
	}
	return nil
}

// DisplayUserQueryHandler serves DisplayUserQuery.
type DisplayUserQueryHandler struct {
	repo Repository
}

// NewDisplayUserQueryHandler creates the handler.
func NewDisplayUserQueryHandler(repo Repository) *DisplayUserQueryHandler {
	return &DisplayUserQueryHandler{repo: repo}
}

// Handle returns the account view.
func (h *DisplayUserQueryHandler) Handle(ctx context.Context, q DisplayUserQuery) (UserView, error) {
	var (
		u   User
		err error
	)
	if q.ID != "" {
		u, err = h.repo.Get(ctx, q.ID)
	} else {
		u, err = h.repo.GetByEmail(ctx, q.Email)
	}
	if err != nil {
		return UserView{}, err
	}
	return u.View(), nil
}

// Register provides every users handler to c.
func Register(c *cqrs.Container, repo Repository, notifier Notifier, bcryptCost int) {
	c.Provide(
		NewRegisterUserCommandHandler(repo, notifier, bcryptCost),
		NewActivateUserCommandHandler(repo),
		NewDisplayUserQueryHandler(repo),
	)
}

// Commands returns a prototype of each users command.
func Commands() []cqrs.Message {
	return []cqrs.Message{RegisterUserCommand{}, ActivateUserCommand{}}
}

// Queries returns a prototype of each users query.
func Queries() []cqrs.Message {
	return []cqrs.Message{DisplayUserQuery{}}
}
