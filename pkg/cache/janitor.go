package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PurgeObserver is notified after every janitor pass.
type PurgeObserver func(ctx context.Context, removed int, err error)

// Janitor purges a backend on a fixed interval. It satisfies runner.Service.
type Janitor struct {
	name     string
	purger   Purger
	interval time.Duration
	logger   *slog.Logger
	observe  PurgeObserver

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithJanitorLogger sets the logger. Default is slog.Default().
func WithJanitorLogger(logger *slog.Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithPurgeObserver registers fn to run after each pass.
func WithPurgeObserver(fn PurgeObserver) JanitorOption {
	return func(j *Janitor) {
		j.observe = fn
	}
}

// NewJanitor creates a janitor purging p every interval. backend names p in logs.
func NewJanitor(backend string, p Purger, interval time.Duration, opts ...JanitorOption) *Janitor {
	j := &Janitor{
		name:     backend,
		purger:   p,
		interval: interval,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements runner.Service.
func (j *Janitor) Name() string {
	return "cache-janitor"
}

// Start implements runner.Service. Passes run on a background goroutine until Stop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel
	j.done = make(chan struct{})

	go j.loop(loopCtx, j.done)
	return nil
}

func (j *Janitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = j.RunOnce(ctx)
		}
	}
}

// Stop implements runner.Service and waits for a running pass to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.cancel, j.done = nil, nil
	j.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single purge pass.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := j.purger.Purge(ctx)

	if j.observe != nil {
		j.observe(ctx, removed, err)
	}

	if err != nil {
		j.logger.ErrorContext(ctx, "cache purge failed",
			slog.String("backend", j.name),
			slog.String("error", err.Error()),
		)
		return removed, err
	}

	j.logger.DebugContext(ctx, "cache purged",
		slog.String("backend", j.name),
		slog.Int("removed", removed),
		slog.Duration("duration", time.Since(start)),
	)
	return removed, nil
}
