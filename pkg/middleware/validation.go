package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/plaenen/shopcore/pkg/cqrs"
)

// ErrInvalidMessage is wrapped by every validation failure.
var ErrInvalidMessage = errors.New("invalid message")

// Validatable is implemented by messages that can check their own fields.
type Validatable interface {
	Validate() error
}

// Validation rejects Validatable messages whose Validate fails before they reach the
// handler. Other messages pass through.
func Validation() cqrs.Middleware {
	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (any, error) {
		if v, ok := msg.(Validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidMessage, cqrs.ShortTypeName(msg), err)
			}
		}
		return next(ctx, msg)
	})
}
