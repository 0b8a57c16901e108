package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNew_JSONIncludesTraceContext(t *testing.T) {
	SetLevel(slog.LevelInfo)
	var buf bytes.Buffer
	logger := New(&buf, "json")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "inside span", record["msg"])
	assert.Equal(t, span.SpanContext().TraceID().String(), record["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), record["span_id"])
}

func TestNew_NoSpanNoTraceFields(t *testing.T) {
	SetLevel(slog.LevelInfo)
	var buf bytes.Buffer
	New(&buf, "json").With("component", "test").Info("plain")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "test", record["component"])
	assert.NotContains(t, record, "trace_id")
}

func TestSetLevel(t *testing.T) {
	defer SetLevel(slog.LevelInfo)

	var buf bytes.Buffer
	logger := New(&buf, "text")

	SetLevel(slog.LevelWarn)
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	SetLevel(slog.LevelDebug)
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}
