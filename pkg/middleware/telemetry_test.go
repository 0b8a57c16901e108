package middleware_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plaenen/shopcore/pkg/middleware"
	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracing(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(ctx)

	mw := middleware.Tracing(tp.Tracer("test"))

	_, err := mw.Handle(ctx, ListWidgetsQuery{Page: 1}, terminal([]string{"a"}, nil))
	require.NoError(t, err)
	boom := errors.New("boom")
	_, err = mw.Handle(ctx, RenameWidgetCommand{Name: "x"}, terminal(nil, boom))
	assert.Same(t, boom, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "query.ListWidgetsQuery", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "query", attrs["message.kind"])
	assert.Equal(t, ListWidgetsQuery{Page: 1}.CacheKey(), attrs["cache.key"])

	assert.Equal(t, "command.RenameWidgetCommand", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	metrics, err := observability.NewMetrics(mp.Meter("test"))
	require.NoError(t, err)
	mw := middleware.Metrics(metrics)

	_, err = mw.Handle(ctx, CountWidgetsQuery{}, terminal(1, nil))
	require.NoError(t, err)
	_, err = mw.Handle(ctx, CountWidgetsQuery{}, terminal(nil, errors.New("boom")))
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					found[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), found["shopcore.dispatch.total"])
	assert.Equal(t, int64(1), found["shopcore.dispatch.errors"])
}
