package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"

	"github.com/plaenen/shopcore/internal/app"
	"github.com/plaenen/shopcore/internal/config"
	"github.com/plaenen/shopcore/internal/logging"
	"github.com/plaenen/shopcore/pkg/observability"
	"github.com/plaenen/shopcore/pkg/sqlite"
)

// env is the per-invocation application: storage, telemetry and the wired buses.
type env struct {
	db    *sql.DB
	tel   *observability.Telemetry
	spans *observability.SQLiteSpanExporter
	app   *app.App
}

func (o *rootOptions) openEnv(ctx context.Context, traceOut io.Writer) (_ *env, err error) {
	cfg := o.cfg
	e := &env{}
	defer func() {
		if err != nil {
			err = errors.Join(err, e.close(ctx))
		}
	}()

	if e.db, err = sqlite.Open(sqlite.WithDSN(cfg.Storage.DSN)); err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	telCfg := observability.Config{
		ServiceName:     "shopctl",
		ServiceVersion:  Version,
		Environment:     cfg.Telemetry.Environment,
		TraceSampleRate: cfg.Telemetry.SampleRate,
		SyncExport:      true,
		Logger:          logging.Logger(),
	}
	switch cfg.Telemetry.Exporter {
	case config.ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(traceOut), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		telCfg.TraceExporter = exp
	case config.ExporterSQLite:
		if e.spans, err = observability.NewSQLiteSpanExporter(ctx, e.db, cfg.Telemetry.Retention); err != nil {
			return nil, fmt.Errorf("sqlite trace exporter: %w", err)
		}
		telCfg.TraceExporter = e.spans
	}
	if e.tel, err = observability.Init(ctx, telCfg); err != nil {
		return nil, err
	}

	e.app, err = app.New(ctx, app.Options{
		Config:    cfg,
		Logger:    logging.Logger(),
		Telemetry: e.tel,
		DB:        e.db,
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// close releases the app first so spans it ends are flushed before storage closes.
func (e *env) close(ctx context.Context) error {
	var errs []error
	if e.app != nil {
		errs = append(errs, e.app.Close())
	}
	if e.tel != nil {
		errs = append(errs, e.tel.Shutdown(context.WithoutCancel(ctx)))
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}

// withEnv adapts fn into a RunE that opens the application around it.
func (o *rootOptions) withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		e, err := o.openEnv(cmd.Context(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, e.close(cmd.Context()))
		}()
		return fn(cmd, args, e)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
