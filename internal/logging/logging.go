// Package logging owns the process logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/plaenen/shopcore/pkg/observability"
)

var (
	level  = new(slog.LevelVar)
	logger = New(os.Stderr, "console")
)

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Configure replaces the process logger and installs it as the slog default.
func Configure(w io.Writer, format, lvl string) error {
	parsed, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	level.Set(parsed)
	logger = New(w, format)
	slog.SetDefault(logger)
	return nil
}

// New builds a logger writing to w in format "text", "json" or "console". Records
// logged with a span in their context carry trace_id and span_id.
func New(w io.Writer, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}
	return slog.New(traceHandler{Handler: h})
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return l, nil
}

type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := observability.TraceID(ctx); traceID != "" {
		r.AddAttrs(
			slog.String("trace_id", traceID),
			slog.String("span_id", observability.SpanID(ctx)),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{Handler: h.Handler.WithGroup(name)}
}
