package app_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/plaenen/shopcore/internal/app"
	"github.com/plaenen/shopcore/internal/catalog"
	"github.com/plaenen/shopcore/internal/config"
	"github.com/plaenen/shopcore/internal/orders"
	"github.com/plaenen/shopcore/internal/users"
	"github.com/plaenen/shopcore/pkg/cqrs"
	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/plaenen/shopcore/pkg/password"
	"github.com/plaenen/shopcore/pkg/sqlite"
)

type outbox map[string]string

func (o outbox) SendActivation(ctx context.Context, email, token string) error {
	o[email] = token
	return nil
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Users.BcryptCost = password.MinCost
	cfg.Storage.DSN = sqlite.MemoryDSN
	return &cfg
}

func newApp(t *testing.T, cfg *config.Config, tel *observability.Telemetry, notifier users.Notifier) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), app.Options{
		Config:    cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Telemetry: tel,
		Notifier:  notifier,
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, a.Close()) })
	return a
}

func TestBackends(t *testing.T) {
	backends := []func(cfg *config.Config){
		func(cfg *config.Config) {},
		func(cfg *config.Config) {
			cfg.Cache.Backend = config.CacheBackendSQLite
			cfg.Cache.Codec = "cbor"
		},
		func(cfg *config.Config) {
			cfg.Cache.Backend = config.CacheBackendSQLite
			cfg.Cache.DSN = t.TempDir() + "/cache.db"
		},
		func(cfg *config.Config) {
			cfg.Cache.Backend = config.CacheBackendNATS
			cfg.Cache.NATS.Embedded = true
			cfg.Cache.NATS.StoreDir = t.TempDir()
		},
	}

	for i, configure := range backends {
		cfg := testConfig(t)
		configure(cfg)

		t.Run(fmt.Sprintf("%d_%s_%s", i, cfg.Cache.Backend, cfg.Cache.Codec), func(t *testing.T) {
			ctx := context.Background()
			a := newApp(t, cfg, nil, outbox{})
			assert.Equal(t, cfg.Cache.Backend, a.CacheBackend())
			require.NotNil(t, a.Janitor)

			created, err := cqrs.DispatchAs[catalog.Category](ctx, a.Commands, catalog.CreateCategoryCommand{Name: "Books"})
			require.NoError(t, err)

			q := catalog.DisplayListCategoryQuery{Pagination: catalog.DefaultPagination()}
			page, err := cqrs.DispatchAs[catalog.CategoryPage](ctx, a.Queries, q)
			require.NoError(t, err)
			require.Len(t, page.Items, 1)
			assert.Equal(t, created.ID, page.Items[0].ID)

			cached, err := cqrs.DispatchAs[catalog.CategoryPage](ctx, a.Queries, q)
			require.NoError(t, err)
			assert.Equal(t, page.Items[0].ID, cached.Items[0].ID)
			assert.True(t, page.Items[0].CreatedAt.Equal(cached.Items[0].CreatedAt))

			_, err = cqrs.DispatchAs[catalog.Category](ctx, a.Commands, catalog.CreateCategoryCommand{Name: "Music"})
			require.NoError(t, err)
			page, err = cqrs.DispatchAs[catalog.CategoryPage](ctx, a.Queries, q)
			require.NoError(t, err)
			assert.Equal(t, int64(2), page.Total)

			_, err = a.Janitor.RunOnce(ctx)
			assert.NoError(t, err)
		})
	}
}

func TestOrderFlowWithTelemetry(t *testing.T) {
	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()
	tel, err := observability.Init(ctx, observability.Config{
		ServiceName:     "shopcore-test",
		TraceExporter:   exporter,
		TraceSampleRate: 1,
		SyncExport:      true,
		MetricReader:    reader,
	})
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	box := outbox{}
	a := newApp(t, testConfig(t), tel, box)

	user, err := cqrs.DispatchAs[users.UserView](ctx, a.Commands, users.RegisterUserCommand{
		Email:       "ada@example.com",
		Password:    "correct-Horse-battery-9",
		AcceptTerms: true,
	})
	require.NoError(t, err)
	_, err = a.Commands.Dispatch(ctx, users.ActivateUserCommand{Token: box["ada@example.com"]})
	require.NoError(t, err)

	placed, err := cqrs.DispatchAs[orders.Order](ctx, a.Commands, orders.PlaceOrderCommand{
		UserID:   user.ID,
		Currency: "EUR",
		Lines:    []orders.LineInput{{SKU: "BOOK-1", Quantity: 2, UnitPrice: decimal.RequireFromString("12.50")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "25", placed.Total.String())

	shown, err := cqrs.DispatchAs[orders.Order](ctx, a.Queries, orders.DisplayOrderQuery{ID: placed.ID})
	require.NoError(t, err)
	assert.True(t, placed.Total.Equal(shown.Total))

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	for _, want := range []string{
		"command.RegisterUserCommand",
		"command.PlaceOrderCommand",
		"query.DisplayUserQuery",
		"query.DisplayOrderQuery",
		"cache.invalidate",
	} {
		assert.True(t, names[want], "missing span %s in %v", want, names)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = true
		}
	}
	assert.True(t, found["shopcore.dispatch.total"])
	assert.True(t, found["shopcore.cache.invalidations"])
}

func TestPrototypesCoverEveryHandler(t *testing.T) {
	a := newApp(t, testConfig(t), nil, outbox{})

	assert.Len(t, a.Container.Names(), len(app.Commands())+len(app.Queries()))
	assert.Len(t, a.Commands.Handlers(), len(app.Commands()))
	assert.Len(t, a.Queries.Handlers(), len(app.Queries()))
}
