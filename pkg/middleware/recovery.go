package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/plaenen/shopcore/pkg/cqrs"
)

// ErrHandlerPanicked wraps a panic recovered from a handler or inner middleware.
var ErrHandlerPanicked = errors.New("handler panicked")

// Recovery converts panics below it into errors wrapping ErrHandlerPanicked. It is the
// only middleware that replaces a failure: place it inside Logging so the converted
// error is logged.
func Recovery(logger *slog.Logger) cqrs.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "handler panicked",
					slog.String("message_type", cqrs.TypeName(msg)),
					slog.Any("panic", r),
					slog.String("stack_trace", string(debug.Stack())),
				)

				result = nil
				err = fmt.Errorf("%w: %v", ErrHandlerPanicked, r)
			}
		}()

		return next(ctx, msg)
	})
}
