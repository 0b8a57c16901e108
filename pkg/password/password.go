// Package password hashes and verifies user passwords with bcrypt and enforces a
// minimum entropy on new passwords.
package password

import (
	"errors"
	"fmt"

	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinCost           = bcrypt.MinCost
	MaxCost           = bcrypt.MaxCost
	DefaultCost       = 12
	MaxPasswordLength = 72 // bcrypt ignores everything past 72 bytes
	MinEntropyBits    = 60
)

var (
	// ErrEmpty is returned for an empty password or hash.
	ErrEmpty = errors.New("password cannot be empty")

	// ErrTooLong is returned for passwords bcrypt would silently truncate.
	ErrTooLong = errors.New("password too long")

	// ErrMismatch is returned by Compare when the password does not match.
	ErrMismatch = errors.New("password does not match")
)

type options struct {
	cost int
}

// Option configures Hash.
type Option func(*options)

// WithCost sets the bcrypt cost factor. Values outside MinCost..MaxCost are ignored.
func WithCost(cost int) Option {
	return func(o *options) {
		if cost >= MinCost && cost <= MaxCost {
			o.cost = cost
		}
	}
}

// Hash returns the bcrypt hash of password.
func Hash(password string, opts ...Option) (string, error) {
	if password == "" {
		return "", ErrEmpty
	}
	if len(password) > MaxPasswordLength {
		return "", ErrTooLong
	}

	o := options{cost: DefaultCost}
	for _, opt := range opts {
		opt(&o)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), o.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare checks password against hashedPassword in constant time.
func Compare(hashedPassword, password string) error {
	if hashedPassword == "" || password == "" {
		return ErrEmpty
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// ValidateStrength fails when password has less than MinEntropyBits of entropy. The
// error message explains how to strengthen it.
func ValidateStrength(password string) error {
	return passwordvalidator.Validate(password, MinEntropyBits)
}
