package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plaenen/shopcore/pkg/cqrs"
)

// Logging logs every dispatch with timing information using slog. A failure is logged
// once at error level and returned unchanged.
func Logging(logger *slog.Logger) cqrs.Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (any, error) {
		start := time.Now()
		messageType := cqrs.TypeName(msg)

		logger.InfoContext(ctx, "dispatching message",
			slog.String("message_type", messageType),
			slog.String("message_kind", kindOf(msg)),
		)

		result, err := next(ctx, msg)

		duration := milliseconds(time.Since(start))

		if err != nil {
			logger.ErrorContext(ctx, "message handling failed",
				slog.String("message_type", messageType),
				slog.Float64("duration_ms", duration),
				slog.String("error_type", fmt.Sprintf("%T", err)),
				slog.String("error", err.Error()),
			)
			return nil, err
		}

		logger.InfoContext(ctx, "message handled",
			slog.String("message_type", messageType),
			slog.Float64("duration_ms", duration),
		)

		return result, nil
	})
}
