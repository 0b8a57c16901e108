// Package app wires storage, the query cache, telemetry and the domain handlers into
// a command bus and a query bus.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/plaenen/shopcore/internal/catalog"
	"github.com/plaenen/shopcore/internal/config"
	"github.com/plaenen/shopcore/internal/orders"
	"github.com/plaenen/shopcore/internal/users"
	"github.com/plaenen/shopcore/pkg/cache"
	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/middleware"
	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/plaenen/shopcore/pkg/sqlite"
)

// Options configures New.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// Telemetry supplies the tracer and dispatch metrics. Nil initializes telemetry
	// without exporters; the App then owns its shutdown.
	Telemetry *observability.Telemetry

	// DB overrides the storage database opened from Config.Storage.DSN. The caller
	// keeps ownership.
	DB *sql.DB

	// Notifier delivers activation tokens. Nil logs them.
	Notifier users.Notifier
}

// App is a wired shopcore instance.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Telemetry *observability.Telemetry
	Container *cqrs.Container
	Commands  *cqrs.CommandBus
	Queries   *cqrs.QueryBus

	// Cache serves cacheable queries; Invalidator is the write-side view used by
	// handlers, recording invalidation metrics.
	Cache       cache.TagAware
	Invalidator cache.Invalidator
	// Janitor purges Cache when the backend supports it; otherwise nil.
	Janitor *cache.Janitor

	backend string
	closers []func() error
}

// New builds an App. Every handler is resolved eagerly, so wiring defects fail here
// rather than on the first dispatch.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger, Container: cqrs.NewContainer()}
	defer func() {
		if err != nil {
			err = errors.Join(err, a.Close())
		}
	}()

	a.Telemetry = opts.Telemetry
	if a.Telemetry == nil {
		tel, err := observability.Init(ctx, observability.Config{
			ServiceName: "shopcore",
			Environment: cfg.Telemetry.Environment,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		a.Telemetry = tel
		a.closers = append(a.closers, func() error { return tel.Shutdown(context.Background()) })
	}

	a.DB = opts.DB
	if a.DB == nil {
		db, err := sqlite.Open(sqlite.WithDSN(cfg.Storage.DSN))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.DB = db
		a.closers = append(a.closers, db.Close)
	}

	if err := a.setupCache(ctx); err != nil {
		return nil, err
	}
	a.Invalidator = &meteredInvalidator{
		next:    a.Cache,
		backend: a.backend,
		metrics: a.Telemetry.Metrics,
		tracer:  a.Telemetry.Tracer(),
		logger:  logger,
	}

	a.Commands = cqrs.NewCommandBus(a.Container, cqrs.WithMiddleware(a.pipeline(false)...))
	a.Queries = cqrs.NewQueryBus(a.Container, cqrs.WithMiddleware(a.pipeline(true)...))

	if err := a.registerHandlers(ctx, opts.Notifier); err != nil {
		return nil, err
	}
	if err := a.Commands.Preload(Commands()...); err != nil {
		return nil, fmt.Errorf("resolve command handlers: %w", err)
	}
	if err := a.Queries.Preload(Queries()...); err != nil {
		return nil, fmt.Errorf("resolve query handlers: %w", err)
	}

	logger.Debug("application wired",
		"cache_backend", a.backend,
		"handlers", len(a.Container.Names()),
	)
	return a, nil
}

// pipeline returns the middleware in execution order: logging outermost, then panic
// recovery, tracing, metrics and validation, with the query cache innermost so only
// valid queries are cached.
func (a *App) pipeline(queries bool) []cqrs.Middleware {
	mw := []cqrs.Middleware{
		middleware.Logging(a.Logger),
		middleware.Recovery(a.Logger),
		middleware.Tracing(a.Telemetry.Tracer()),
	}
	if a.Telemetry.Metrics != nil {
		mw = append(mw, middleware.Metrics(a.Telemetry.Metrics))
	}
	mw = append(mw, middleware.Validation())
	if queries {
		mw = append(mw, middleware.QueryCache(a.Cache))
	}
	return mw
}

func (a *App) registerHandlers(ctx context.Context, notifier users.Notifier) error {
	categories, err := catalog.NewSQLiteRepository(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("catalog storage: %w", err)
	}
	accounts, err := users.NewSQLiteRepository(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("users storage: %w", err)
	}
	purchases, err := orders.NewSQLiteRepository(ctx, a.DB)
	if err != nil {
		return fmt.Errorf("orders storage: %w", err)
	}

	if notifier == nil {
		notifier = users.NewLogNotifier(a.Logger)
	}

	catalog.Register(a.Container, categories, a.Invalidator)
	users.Register(a.Container, accounts, notifier, a.Config.Users.BcryptCost)
	orders.Register(a.Container, purchases, a.Invalidator, a.Queries)
	return nil
}

// Commands returns a prototype of every command the App handles.
func Commands() []cqrs.Message {
	return slices.Concat(catalog.Commands(), users.Commands(), orders.Commands())
}

// Queries returns a prototype of every query the App handles.
func Queries() []cqrs.Message {
	return slices.Concat(catalog.Queries(), users.Queries(), orders.Queries())
}

// CacheTypes returns every result type a byte-oriented cache backend must restore.
func CacheTypes() []any {
	return slices.Concat(catalog.CacheTypes(), orders.CacheTypes())
}

// CacheBackend names the configured cache backend.
func (a *App) CacheBackend() string {
	return a.backend
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
