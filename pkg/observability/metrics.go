package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded around dispatches and cache maintenance.
type Metrics struct {
	DispatchDuration metric.Float64Histogram
	DispatchTotal    metric.Int64Counter
	DispatchErrors   metric.Int64Counter

	CacheInvalidations metric.Int64Counter
	CachePurged        metric.Int64Counter
}

// NewMetrics creates all instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DispatchDuration, err = meter.Float64Histogram(
		"shopcore.dispatch.duration",
		metric.WithDescription("Message dispatch duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch.duration: %w", err)
	}

	m.DispatchTotal, err = meter.Int64Counter(
		"shopcore.dispatch.total",
		metric.WithDescription("Total messages dispatched"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch.total: %w", err)
	}

	m.DispatchErrors, err = meter.Int64Counter(
		"shopcore.dispatch.errors",
		metric.WithDescription("Total failed dispatches"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch.errors: %w", err)
	}

	m.CacheInvalidations, err = meter.Int64Counter(
		"shopcore.cache.invalidations",
		metric.WithDescription("Cache tags invalidated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.invalidations: %w", err)
	}

	m.CachePurged, err = meter.Int64Counter(
		"shopcore.cache.purged",
		metric.WithDescription("Expired or invalidated cache entries removed by the janitor"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cache.purged: %w", err)
	}

	return m, nil
}

// RecordDispatch records one dispatch of messageType.
func (m *Metrics) RecordDispatch(ctx context.Context, messageType, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("message_type", messageType),
		attribute.String("message_kind", kind),
	)

	m.DispatchDuration.Record(ctx, duration.Seconds(), attrs)
	m.DispatchTotal.Add(ctx, 1, attrs)

	if err != nil {
		m.DispatchErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("message_type", messageType),
			attribute.String("message_kind", kind),
			attribute.String("error_type", fmt.Sprintf("%T", err)),
		))
	}
}

// RecordInvalidation counts invalidated tags.
func (m *Metrics) RecordInvalidation(ctx context.Context, tags ...string) {
	for _, tag := range tags {
		m.CacheInvalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("tag", tag)))
	}
}

// RecordPurge counts entries removed by one janitor pass.
func (m *Metrics) RecordPurge(ctx context.Context, backend string, removed int) {
	m.CachePurged.Add(ctx, int64(removed), metric.WithAttributes(attribute.String("backend", backend)))
}
