package middleware

import (
	"context"
	"time"

	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/observability"
)

// Metrics records dispatch count, duration and failures on m.
func Metrics(m *observability.Metrics) cqrs.Middleware {
	if m == nil {
		panic("middleware: nil metrics")
	}

	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (any, error) {
		start := time.Now()
		result, err := next(ctx, msg)
		m.RecordDispatch(ctx, cqrs.TypeName(msg), kindOf(msg), time.Since(start), err)
		return result, err
	})
}
