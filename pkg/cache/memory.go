package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process TagAware cache. Tags are versioned: invalidating a tag bumps
// its version, and entries stored under an older version are treated as misses.
// It is safe for concurrent use. Concurrent misses on one key each run compute.
//
// Purge drops the versions of tags no stored entry references, so per-entity tags do
// not accumulate. It skips that while a compute is in flight: the pending entry holds a
// snapshot that must still be compared against the tags' real versions.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	tagVersions map[string]uint64
	inflight    int
	now         func() time.Time
}

type memoryEntry struct {
	value     any
	expiresAt time.Time
	tags      map[string]uint64
}

// MemoryOption configures a Memory cache.
type MemoryOption func(*Memory)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory creates an empty in-memory cache.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries:     make(map[string]memoryEntry),
		tagVersions: make(map[string]uint64),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get implements TagAware.
func (m *Memory) Get(ctx context.Context, key string, ttl time.Duration, tags []string, compute Compute) (any, error) {
	m.mu.Lock()
	if entry, ok := m.entries[key]; ok {
		if !Expired(entry.expiresAt, m.now()) && Fresh(entry.tags, m.tagVersions) {
			m.mu.Unlock()
			return entry.value, nil
		}
		delete(m.entries, key)
	}
	// Snapshot before computing so an invalidation racing with compute wins.
	snapshot := m.snapshot(tags)
	m.inflight++
	m.mu.Unlock()

	stored := false
	defer func() {
		if !stored {
			m.mu.Lock()
			m.inflight--
			m.mu.Unlock()
		}
	}()

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.inflight--
	stored = true
	m.entries[key] = memoryEntry{
		value:     value,
		expiresAt: Expiry(m.now(), ttl),
		tags:      snapshot,
	}
	return value, nil
}

func (m *Memory) snapshot(tags []string) map[string]uint64 {
	snapshot := make(map[string]uint64, len(tags))
	for _, tag := range tags {
		snapshot[tag] = m.tagVersions[tag]
	}
	return snapshot
}

// InvalidateTags implements TagAware.
func (m *Memory) InvalidateTags(ctx context.Context, tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tag := range tags {
		m.tagVersions[tag]++
	}
	return nil
}

// Delete removes a single key.
func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Purge drops expired and invalidated entries and reports how many were removed.
func (m *Memory) Purge(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, entry := range m.entries {
		if Expired(entry.expiresAt, now) || !Fresh(entry.tags, m.tagVersions) {
			delete(m.entries, key)
			removed++
		}
	}
	if m.inflight == 0 {
		m.pruneTags()
	}
	return removed, nil
}

func (m *Memory) pruneTags() {
	live := make(map[string]struct{})
	for _, entry := range m.entries {
		for tag := range entry.tags {
			live[tag] = struct{}{}
		}
	}
	for tag := range m.tagVersions {
		if _, ok := live[tag]; !ok {
			delete(m.tagVersions, tag)
		}
	}
}

// TagLen returns the number of tags with a recorded version.
func (m *Memory) TagLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.tagVersions)
}

// Len returns the number of stored entries, including stale ones not yet purged.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entries)
}
