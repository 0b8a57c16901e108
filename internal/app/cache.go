package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"

	"github.com/plaenen/shopcore/internal/config"
	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cache/natscache"
	"github.com/plaenen/shopcore/pkg/cache/sqlitecache"
	"github.com/plaenen/shopcore/pkg/natsutil"
	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/plaenen/shopcore/pkg/sqlite"
)

// setupCache builds the configured backend and, when it can purge, its janitor.
func (a *App) setupCache(ctx context.Context) error {
	cfg := a.Config.Cache
	a.backend = cfg.Backend

	switch cfg.Backend {
	case config.CacheBackendMemory, "":
		a.backend = config.CacheBackendMemory
		a.Cache = cache.NewMemory()

	case config.CacheBackendSQLite:
		codec, err := a.codec()
		if err != nil {
			return err
		}
		db := a.DB
		if cfg.DSN != "" {
			if db, err = sqlite.Open(sqlite.WithDSN(cfg.DSN)); err != nil {
				return fmt.Errorf("open cache database: %w", err)
			}
			a.closers = append(a.closers, db.Close)
		}
		store, err := sqlitecache.New(ctx, db, codec, sqlitecache.WithLogger(a.Logger))
		if err != nil {
			return fmt.Errorf("sqlite cache: %w", err)
		}
		a.Cache = store

	case config.CacheBackendNATS:
		codec, err := a.codec()
		if err != nil {
			return err
		}
		js, err := a.jetStream(cfg.NATS)
		if err != nil {
			return err
		}
		opts := []natscache.Option{
			natscache.WithMaxAge(cfg.NATS.MaxAge),
			natscache.WithReplicas(cfg.NATS.Replicas),
			natscache.WithLogger(a.Logger),
		}
		store, err := natscache.New(js, cfg.NATS.Bucket, codec, opts...)
		if err != nil {
			return fmt.Errorf("nats cache: %w", err)
		}
		a.Cache = store

	default:
		return fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	if purger, ok := a.Cache.(cache.Purger); ok {
		a.Janitor = cache.NewJanitor(a.backend, purger, cfg.JanitorInterval,
			cache.WithJanitorLogger(a.Logger),
			cache.WithPurgeObserver(a.observePurge),
		)
	}
	return nil
}

func (a *App) codec() (cache.Codec, error) {
	return cache.NewCodec(a.Config.Cache.Codec, cache.NewTypeRegistry(CacheTypes()...))
}

// jetStream connects to the configured server, starting an embedded one first when
// asked to.
func (a *App) jetStream(cfg config.NATSConfig) (nats.JetStreamContext, error) {
	url := cfg.URL
	if cfg.Embedded {
		srv, err := natsutil.StartEmbeddedServer(
			natsutil.WithStoreDir(cfg.StoreDir),
			natsutil.WithLogger(a.Logger),
		)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error {
			srv.Shutdown()
			return nil
		})
		url = srv.URL()
	}

	nc, err := nats.Connect(url, nats.Name("shopcore"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	a.closers = append(a.closers, func() error {
		nc.Close()
		return nil
	})

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	return js, nil
}

func (a *App) observePurge(ctx context.Context, removed int, err error) {
	if err != nil || a.Telemetry.Metrics == nil {
		return
	}
	a.Telemetry.Metrics.RecordPurge(ctx, a.backend, removed)
}

// meteredInvalidator traces and counts tag invalidations.
type meteredInvalidator struct {
	next    cache.Invalidator
	backend string
	metrics *observability.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

func (m *meteredInvalidator) InvalidateTags(ctx context.Context, tags ...string) error {
	ctx, span := observability.StartSpan(ctx, m.tracer, "cache.invalidate",
		observability.AttrCacheBackend.String(m.backend),
		observability.AttrCacheTags.StringSlice(tags),
	)
	err := m.next.InvalidateTags(ctx, tags...)
	observability.EndSpan(span, err)
	if err != nil {
		m.logger.WarnContext(ctx, "cache invalidation failed", "tags", tags, "error", err)
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordInvalidation(ctx, tags...)
	}
	return nil
}
