package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/plaenen/shopcore/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestSQLiteSpanExporter(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	defer db.Close()

	exporter, err := observability.NewSQLiteSpanExporter(ctx, db, 0)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(ctx)
	tracer := tp.Tracer("test")

	parentCtx, parent := tracer.Start(ctx, "query.DisplayListCategoryQuery")
	_, child := observability.StartSpan(parentCtx, tracer, "sqlite.list", attribute.String("message.kind", "query"))
	observability.EndSpan(child, errors.New("disk full"))
	observability.EndSpan(parent, nil)

	spans, err := exporter.RecentSpans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, spans, 2)

	byName := map[string]observability.SpanRecord{}
	for _, s := range spans {
		byName[s.Name] = s
	}

	failed := byName["sqlite.list"]
	assert.True(t, failed.Failed)
	assert.Equal(t, "disk full", failed.StatusMessage)
	assert.Equal(t, "query", failed.Attributes["message.kind"])
	assert.Equal(t, byName["query.DisplayListCategoryQuery"].SpanID, failed.ParentSpanID)
	assert.Equal(t, byName["query.DisplayListCategoryQuery"].TraceID, failed.TraceID)
	assert.False(t, byName["query.DisplayListCategoryQuery"].Failed)
}
