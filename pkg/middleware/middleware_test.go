package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ListWidgetsQuery struct {
	Page    int
	OrderBy map[string]string
}

func (q ListWidgetsQuery) CacheKey() string {
	return cache.MustKey("widget_list_", map[string]any{"page": q.Page, "orderBy": q.OrderBy})
}

func (q ListWidgetsQuery) CacheTTL() time.Duration { return time.Hour }

func (q ListWidgetsQuery) CacheTags() []string { return []string{"widgets"} }

type ListWidgetsQueryHandler struct {
	calls atomic.Int32
	err   error
}

func (h *ListWidgetsQueryHandler) Handle(ctx context.Context, q ListWidgetsQuery) ([]string, error) {
	h.calls.Add(1)
	if h.err != nil {
		return nil, h.err
	}
	return []string{fmt.Sprintf("page-%d", q.Page)}, nil
}

type CountWidgetsQuery struct{}

type CountWidgetsQueryHandler struct{ calls atomic.Int32 }

func (h *CountWidgetsQueryHandler) Handle(ctx context.Context, q CountWidgetsQuery) (int, error) {
	return int(h.calls.Add(1)), nil
}

type RenameWidgetCommand struct{ Name string }

func (c RenameWidgetCommand) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

type logRecord map[string]any

func captureLogs(t *testing.T) (*slog.Logger, func() []logRecord) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	return logger, func() []logRecord {
		var records []logRecord
		for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
			if len(line) == 0 {
				continue
			}
			var r logRecord
			require.NoError(t, json.Unmarshal(line, &r))
			records = append(records, r)
		}
		return records
	}
}

func terminal(result any, err error) cqrs.Next {
	return func(ctx context.Context, msg cqrs.Message) (any, error) {
		return result, err
	}
}

func TestLogging(t *testing.T) {
	ctx := context.Background()
	msgType := "github.com/plaenen/shopcore/pkg/middleware_test.RenameWidgetCommand"

	t.Run("Success", func(t *testing.T) {
		logger, records := captureLogs(t)

		result, err := middleware.Logging(logger).Handle(ctx, RenameWidgetCommand{Name: "bolt"}, terminal("ok", nil))
		require.NoError(t, err)
		assert.Equal(t, "ok", result)

		logs := records()
		require.Len(t, logs, 2)

		assert.Equal(t, "INFO", logs[0]["level"])
		assert.Equal(t, "dispatching message", logs[0]["msg"])
		assert.Equal(t, msgType, logs[0]["message_type"])
		assert.Equal(t, "command", logs[0]["message_kind"])

		assert.Equal(t, "INFO", logs[1]["level"])
		assert.Equal(t, "message handled", logs[1]["msg"])
		assert.Equal(t, msgType, logs[1]["message_type"])
		assert.IsType(t, float64(0), logs[1]["duration_ms"])
	})

	t.Run("Failure", func(t *testing.T) {
		logger, records := captureLogs(t)
		boom := errors.New("boom")

		_, err := middleware.Logging(logger).Handle(ctx, RenameWidgetCommand{}, terminal(nil, boom))
		assert.Same(t, boom, err)

		logs := records()
		require.Len(t, logs, 2)

		var errorLogs []logRecord
		for _, r := range logs {
			if r["level"] == "ERROR" {
				errorLogs = append(errorLogs, r)
			}
		}
		require.Len(t, errorLogs, 1)
		assert.Equal(t, "message handling failed", errorLogs[0]["msg"])
		assert.Equal(t, msgType, errorLogs[0]["message_type"])
		assert.Equal(t, "*errors.errorString", errorLogs[0]["error_type"])
		assert.Equal(t, "boom", errorLogs[0]["error"])
		assert.Contains(t, errorLogs[0], "duration_ms")
	})

	t.Run("DurationIsRounded", func(t *testing.T) {
		logger, records := captureLogs(t)
		slow := func(ctx context.Context, msg cqrs.Message) (any, error) {
			time.Sleep(3 * time.Millisecond)
			return nil, nil
		}

		_, err := middleware.Logging(logger).Handle(ctx, CountWidgetsQuery{}, slow)
		require.NoError(t, err)

		duration := records()[1]["duration_ms"].(float64)
		assert.GreaterOrEqual(t, duration, 3.0)
		assert.Equal(t, duration, math.Round(duration*100)/100)
	})
}

type spyCache struct {
	cache.TagAware
	gets atomic.Int32
}

func (s *spyCache) Get(ctx context.Context, key string, ttl time.Duration, tags []string, compute cache.Compute) (any, error) {
	s.gets.Add(1)
	return s.TagAware.Get(ctx, key, ttl, tags, compute)
}

func newQueryBus(t *testing.T, c middleware.Cache, handlers ...any) *cqrs.QueryBus {
	t.Helper()
	container := cqrs.NewContainer()
	container.Provide(handlers...)
	return cqrs.NewQueryBus(container, cqrs.WithMiddleware(middleware.QueryCache(c)))
}

func TestQueryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("CachesCacheableQueries", func(t *testing.T) {
		handler := &ListWidgetsQueryHandler{}
		bus := newQueryBus(t, cache.NewMemory(), handler)

		first, err := bus.Dispatch(ctx, ListWidgetsQuery{Page: 1})
		require.NoError(t, err)
		second, err := bus.Dispatch(ctx, ListWidgetsQuery{Page: 1})
		require.NoError(t, err)

		assert.Equal(t, []string{"page-1"}, first)
		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), handler.calls.Load())

		_, err = bus.Dispatch(ctx, ListWidgetsQuery{Page: 1, OrderBy: map[string]string{"createdAt": "DESC"}})
		require.NoError(t, err)
		assert.Equal(t, int32(2), handler.calls.Load())
	})

	t.Run("InvalidationForcesRecompute", func(t *testing.T) {
		handler := &ListWidgetsQueryHandler{}
		store := cache.NewMemory()
		bus := newQueryBus(t, store, handler)

		_, err := bus.Dispatch(ctx, ListWidgetsQuery{Page: 1})
		require.NoError(t, err)
		require.NoError(t, store.InvalidateTags(ctx, "widgets"))
		_, err = bus.Dispatch(ctx, ListWidgetsQuery{Page: 1})
		require.NoError(t, err)

		assert.Equal(t, int32(2), handler.calls.Load())
	})

	t.Run("NonCacheablePassesThrough", func(t *testing.T) {
		spy := &spyCache{TagAware: cache.NewMemory()}
		handler := &CountWidgetsQueryHandler{}
		bus := newQueryBus(t, spy, handler)

		first, err := bus.Dispatch(ctx, CountWidgetsQuery{})
		require.NoError(t, err)
		second, err := bus.Dispatch(ctx, CountWidgetsQuery{})
		require.NoError(t, err)

		assert.Equal(t, 1, first)
		assert.Equal(t, 2, second)
		assert.Equal(t, int32(0), spy.gets.Load())
	})

	t.Run("FailureIsNotCached", func(t *testing.T) {
		boom := errors.New("db down")
		handler := &ListWidgetsQueryHandler{err: boom}
		bus := newQueryBus(t, cache.NewMemory(), handler)

		_, err := bus.Dispatch(ctx, ListWidgetsQuery{Page: 2})
		assert.Same(t, boom, err)

		handler.err = nil
		result, err := bus.Dispatch(ctx, ListWidgetsQuery{Page: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"page-2"}, result)
		assert.Equal(t, int32(2), handler.calls.Load())
	})

	t.Run("NilCachePanics", func(t *testing.T) {
		assert.Panics(t, func() { middleware.QueryCache(nil) })
	})
}

func TestRecovery(t *testing.T) {
	ctx := context.Background()
	logger, records := captureLogs(t)

	panicking := func(ctx context.Context, msg cqrs.Message) (any, error) {
		panic("nil map write")
	}

	result, err := middleware.Recovery(logger).Handle(ctx, RenameWidgetCommand{Name: "x"}, panicking)
	assert.Nil(t, result)
	require.ErrorIs(t, err, middleware.ErrHandlerPanicked)
	assert.Contains(t, err.Error(), "nil map write")

	logs := records()
	require.Len(t, logs, 1)
	assert.Equal(t, "handler panicked", logs[0]["msg"])
	assert.NotEmpty(t, logs[0]["stack_trace"])

	boom := errors.New("boom")
	_, err = middleware.Recovery(logger).Handle(ctx, RenameWidgetCommand{}, terminal(nil, boom))
	assert.Same(t, boom, err)
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	calls := 0
	next := func(ctx context.Context, msg cqrs.Message) (any, error) {
		calls++
		return nil, nil
	}

	_, err := middleware.Validation().Handle(ctx, RenameWidgetCommand{Name: " "}, next)
	require.ErrorIs(t, err, middleware.ErrInvalidMessage)
	assert.Contains(t, err.Error(), "name is required")
	assert.Equal(t, 0, calls)

	_, err = middleware.Validation().Handle(ctx, RenameWidgetCommand{Name: "bolt"}, next)
	require.NoError(t, err)
	_, err = middleware.Validation().Handle(ctx, CountWidgetsQuery{}, next)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
