package middleware

import (
	"context"

	"github.com/plaenen/shopcore/pkg/cqrs"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTracerName is the instrumentation name used when no tracer is given.
const DefaultTracerName = "github.com/plaenen/shopcore"

// Tracing wraps every dispatch in a span named "<kind>.<MessageName>". A nil tracer
// uses the global tracer provider.
func Tracing(tracer trace.Tracer) cqrs.Middleware {
	if tracer == nil {
		tracer = otel.Tracer(DefaultTracerName)
	}

	return cqrs.MiddlewareFunc(func(ctx context.Context, msg cqrs.Message, next cqrs.Next) (any, error) {
		kind := kindOf(msg)

		spanCtx, span := tracer.Start(ctx, kind+"."+cqrs.ShortTypeName(msg),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("message.type", cqrs.TypeName(msg)),
				attribute.String("message.kind", kind),
			),
		)
		defer span.End()

		if cacheable, ok := msg.(cqrs.Cacheable); ok {
			span.SetAttributes(
				attribute.String("cache.key", cacheable.CacheKey()),
				attribute.StringSlice("cache.tags", cacheable.CacheTags()),
			)
		}

		result, err := next(spanCtx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		span.SetStatus(codes.Ok, "")
		return result, nil
	})
}
