package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist in a backend.
var ErrNotFound = errors.New("cache: miss")

// Compute produces a value on a cache miss.
type Compute func(ctx context.Context) (any, error)

// TagAware is a read-through cache whose entries can be invalidated in bulk by tag.
//
// Get returns the cached value for key when it is present, unexpired and none of the
// tags it was stored under were invalidated since. Otherwise it calls compute, stores
// the result under ttl and tags, and returns it. A failed compute stores nothing and
// its error is returned unchanged. A ttl <= 0 never expires.
type TagAware interface {
	Get(ctx context.Context, key string, ttl time.Duration, tags []string, compute Compute) (any, error)
	InvalidateTags(ctx context.Context, tags ...string) error
}

// Invalidator is the write-side view of a TagAware cache.
type Invalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}

// Purger is implemented by backends that can drop expired entries eagerly.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// Expiry returns the absolute expiry for ttl, or the zero time for "never".
func Expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Expired reports whether an entry with the given expiry is stale at now.
func Expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

// Fresh reports whether a tag version snapshot still matches the current versions.
// A tag missing from current is at version zero.
func Fresh(snapshot, current map[string]uint64) bool {
	for tag, version := range snapshot {
		if current[tag] != version {
			return false
		}
	}
	return true
}
