// Package cachetest holds the behavior suite every cache.TagAware backend must pass.
package cachetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Item is a structured value used to check typed round-trips through byte stores.
type Item struct {
	ID    string   `json:"id"`
	Names []string `json:"names"`
	Count int64    `json:"count"`
}

// Registry returns a type registry holding every value type the suite stores.
func Registry() *cache.TypeRegistry {
	return cache.NewTypeRegistry("", Item{}, []Item{})
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory creates an empty backend reading time from clock.
type Factory func(t *testing.T, clock *Clock) cache.TagAware

type counter struct{ n int }

func (c *counter) compute(value any) cache.Compute {
	return func(ctx context.Context) (any, error) {
		c.n++
		return value, nil
	}
}

// Run executes the suite against backends built by newCache.
func Run(t *testing.T, newCache Factory) {
	ctx := context.Background()

	t.Run("HitWithinTTL", func(t *testing.T) {
		c := newCache(t, NewClock())
		calls := &counter{}

		first, err := c.Get(ctx, "greeting", time.Minute, nil, calls.compute("hello"))
		require.NoError(t, err)
		second, err := c.Get(ctx, "greeting", time.Minute, nil, calls.compute("other"))
		require.NoError(t, err)

		assert.Equal(t, "hello", first)
		assert.Equal(t, "hello", second)
		assert.Equal(t, 1, calls.n)
	})

	t.Run("TypedValues", func(t *testing.T) {
		c := newCache(t, NewClock())
		calls := &counter{}
		items := []Item{{ID: "a", Names: []string{"x"}, Count: 2}}

		_, err := c.Get(ctx, "items", time.Minute, nil, calls.compute(items))
		require.NoError(t, err)
		got, err := c.Get(ctx, "items", time.Minute, nil, calls.compute(nil))
		require.NoError(t, err)

		assert.Equal(t, items, got)
		assert.Equal(t, 1, calls.n)
	})

	t.Run("Expiry", func(t *testing.T) {
		clock := NewClock()
		c := newCache(t, clock)
		calls := &counter{}

		_, err := c.Get(ctx, "k", time.Minute, nil, calls.compute("v"))
		require.NoError(t, err)
		clock.Advance(time.Minute)
		_, err = c.Get(ctx, "k", time.Minute, nil, calls.compute("v"))
		require.NoError(t, err)

		assert.Equal(t, 2, calls.n)
	})

	t.Run("NonPositiveTTLNeverExpires", func(t *testing.T) {
		clock := NewClock()
		c := newCache(t, clock)
		calls := &counter{}

		_, err := c.Get(ctx, "k", 0, nil, calls.compute("v"))
		require.NoError(t, err)
		clock.Advance(1000 * time.Hour)
		_, err = c.Get(ctx, "k", 0, nil, calls.compute("v"))
		require.NoError(t, err)

		assert.Equal(t, 1, calls.n)
	})

	t.Run("TagInvalidation", func(t *testing.T) {
		c := newCache(t, NewClock())
		calls := &counter{}

		_, err := c.Get(ctx, "list", time.Hour, []string{"categories"}, calls.compute("list"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "one", time.Hour, []string{"categories", "category_1"}, calls.compute("one"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "order", time.Hour, []string{"order_9"}, calls.compute("order"))
		require.NoError(t, err)
		require.Equal(t, 3, calls.n)

		require.NoError(t, c.InvalidateTags(ctx, "category_1"))
		_, err = c.Get(ctx, "list", time.Hour, []string{"categories"}, calls.compute("list"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "one", time.Hour, []string{"categories", "category_1"}, calls.compute("one"))
		require.NoError(t, err)
		assert.Equal(t, 4, calls.n, "only the entry tagged category_1 is recomputed")

		require.NoError(t, c.InvalidateTags(ctx, "categories"))
		_, err = c.Get(ctx, "list", time.Hour, []string{"categories"}, calls.compute("list"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "order", time.Hour, []string{"order_9"}, calls.compute("order"))
		require.NoError(t, err)
		assert.Equal(t, 5, calls.n)
	})

	t.Run("InvalidateUnknownTag", func(t *testing.T) {
		c := newCache(t, NewClock())
		assert.NoError(t, c.InvalidateTags(ctx, "never_used"))
		assert.NoError(t, c.InvalidateTags(ctx))
	})

	t.Run("FailedComputeIsNotStored", func(t *testing.T) {
		c := newCache(t, NewClock())
		boom := errors.New("boom")

		_, err := c.Get(ctx, "k", time.Hour, []string{"t"}, func(ctx context.Context) (any, error) {
			return nil, boom
		})
		assert.Same(t, boom, err)

		calls := &counter{}
		got, err := c.Get(ctx, "k", time.Hour, []string{"t"}, calls.compute("ok"))
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 1, calls.n)
	})

	t.Run("Purge", func(t *testing.T) {
		clock := NewClock()
		c := newCache(t, clock)
		purger, ok := c.(cache.Purger)
		if !ok {
			t.Skip("backend does not purge")
		}
		calls := &counter{}

		_, err := c.Get(ctx, "short", time.Second, nil, calls.compute("a"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "tagged", time.Hour, []string{"t"}, calls.compute("b"))
		require.NoError(t, err)
		_, err = c.Get(ctx, "kept", time.Hour, []string{"u"}, calls.compute("c"))
		require.NoError(t, err)

		clock.Advance(2 * time.Second)
		require.NoError(t, c.InvalidateTags(ctx, "t"))

		removed, err := purger.Purge(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = c.Get(ctx, "kept", time.Hour, []string{"u"}, calls.compute("c"))
		require.NoError(t, err)
		assert.Equal(t, 3, calls.n)
	})
}

// LegacyItem is a value type that only the writer registry of RunRecovery knows, the
// way an older binary's types are unknown to a newer one sharing the same store.
type LegacyItem struct {
	A int `json:"a"`
}

// unregistered is known to no registry, so encoding it always fails.
type unregistered struct {
	B int
}

// PairFactory creates two backends over the same storage. writer restores values with
// writerTypes, reader with readerTypes.
type PairFactory func(t *testing.T, writerTypes, readerTypes *cache.TypeRegistry) (writer, reader cache.TagAware)

// RunRecovery checks that byte-oriented backends recompute entries they cannot decode
// and return computed values they cannot store.
func RunRecovery(t *testing.T, newPair PairFactory) {
	ctx := context.Background()

	t.Run("UndecodableEntryIsRecomputed", func(t *testing.T) {
		writerTypes := cache.NewTypeRegistry("", Item{}, []Item{}, LegacyItem{})
		writer, reader := newPair(t, writerTypes, Registry())
		calls := &counter{}

		_, err := writer.Get(ctx, "k", time.Hour, []string{"t"}, calls.compute(LegacyItem{A: 1}))
		require.NoError(t, err)

		got, err := reader.Get(ctx, "k", time.Hour, []string{"t"}, calls.compute(Item{ID: "new"}))
		require.NoError(t, err)
		assert.Equal(t, Item{ID: "new"}, got)
		assert.Equal(t, 2, calls.n)

		// The recomputed value replaced the undecodable one.
		got, err = reader.Get(ctx, "k", time.Hour, []string{"t"}, calls.compute(Item{ID: "other"}))
		require.NoError(t, err)
		assert.Equal(t, Item{ID: "new"}, got)
		assert.Equal(t, 2, calls.n)
	})

	t.Run("UnstorableValueIsReturned", func(t *testing.T) {
		_, c := newPair(t, Registry(), Registry())
		calls := &counter{}

		got, err := c.Get(ctx, "k", time.Hour, nil, calls.compute(unregistered{B: 7}))
		require.NoError(t, err)
		assert.Equal(t, unregistered{B: 7}, got)

		got, err = c.Get(ctx, "k", time.Hour, nil, calls.compute(unregistered{B: 8}))
		require.NoError(t, err)
		assert.Equal(t, unregistered{B: 8}, got)
		assert.Equal(t, 2, calls.n, "nothing was stored")
	})
}
