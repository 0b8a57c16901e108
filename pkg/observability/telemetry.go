// Package observability wires OpenTelemetry tracing and metrics for dispatches, with
// pluggable exporters and no-op fallbacks when none are configured.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer and meter used by shopcore components.
const InstrumentationName = "github.com/plaenen/shopcore"

// Config configures the observability stack.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// TraceExporter receives finished spans. Nil disables tracing.
	TraceExporter sdktrace.SpanExporter
	// TraceSampleRate is the sampled fraction, 0.0 to 1.0.
	TraceSampleRate float64
	// SyncExport exports each span as it ends instead of batching. Short-lived
	// processes such as the CLI use it so nothing is lost on exit.
	SyncExport bool

	// MetricReader collects metrics. Nil still creates instruments, backed by a
	// provider without readers.
	MetricReader sdkmetric.Reader

	Logger *slog.Logger
}

// Telemetry holds the configured providers and dispatch instruments.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Metrics        *Metrics
	Logger         *slog.Logger

	shutdown []func(context.Context) error
}

// Init configures tracing and metrics from cfg and installs them as the global
// providers. Exporter failures degrade to no-op telemetry instead of failing startup.
func Init(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tel := &Telemetry{Logger: cfg.Logger}

	if cfg.TraceExporter != nil {
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			spanProcessor(cfg),
			sdktrace.WithSampler(sampler(cfg.TraceSampleRate)),
		)
		tel.TracerProvider = tp
		tel.shutdown = append(tel.shutdown, tp.Shutdown)
		otel.SetTracerProvider(tp)
		cfg.Logger.Debug("tracing initialized", "service", cfg.ServiceName)
	} else {
		tel.TracerProvider = noop.NewTracerProvider()
		cfg.Logger.Debug("tracing disabled (no exporter configured)")
	}

	mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.MetricReader != nil {
		mpOpts = append(mpOpts, sdkmetric.WithReader(cfg.MetricReader))
	}
	mp := sdkmetric.NewMeterProvider(mpOpts...)
	tel.MeterProvider = mp
	tel.shutdown = append(tel.shutdown, mp.Shutdown)
	otel.SetMeterProvider(mp)

	tel.Metrics, err = NewMetrics(mp.Meter(InstrumentationName))
	if err != nil {
		cfg.Logger.Warn("metrics setup failed, continuing without metrics", "error", err)
	}

	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return tel, nil
}

func spanProcessor(cfg Config) sdktrace.TracerProviderOption {
	if cfg.SyncExport {
		return sdktrace.WithSyncer(cfg.TraceExporter)
	}
	return sdktrace.WithBatcher(cfg.TraceExporter)
}

func sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate <= 0:
		return sdktrace.NeverSample()
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range t.shutdown {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tracer returns the shopcore tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.TracerProvider.Tracer(InstrumentationName)
}
