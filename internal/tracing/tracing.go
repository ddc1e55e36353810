// Package tracing wires an OTLP-over-HTTP tracer provider for the router's
// dispatch loop and each worker's log-streaming session, with a noop tracer
// when disabled (SPEC_FULL.md §10's optional observability surface).
package tracing

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config controls whether tracing is enabled and where spans are exported.
type Config struct {
	Enabled      bool
	ServiceName  string
	Endpoint     string
	Headers      map[string]string
	BatchTimeout time.Duration
	MaxBatchSize int
}

// Provider owns the process-wide tracer and its shutdown.
type Provider struct {
	tracer   oteltrace.Tracer
	shutdown func(context.Context) error
}

// New builds a Provider. When cfg.Enabled is false, it returns a Provider
// backed by the OTEL noop implementation, so callers never need to check
// whether tracing is on before starting a span.
func New(ctx context.Context, cfg Config, logger *logrus.Logger) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			tracer:   noop.NewTracerProvider().Tracer("mobystash"),
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint), otlptracehttp.WithInsecure()}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("tracing: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: create resource: %w", err)
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 5 * time.Second
	}
	maxBatchSize := cfg.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = 512
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(batchTimeout),
			sdktrace.WithMaxExportBatchSize(maxBatchSize),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(provider)

	if logger != nil {
		logger.WithField("endpoint", cfg.Endpoint).Info("tracing: otlp exporter initialized")
	}

	return &Provider{
		tracer:   provider.Tracer(cfg.ServiceName),
		shutdown: provider.Shutdown,
	}, nil
}

// Tracer returns the process-wide tracer, for components that start their
// own spans (router dispatch, worker stream).
func (p *Provider) Tracer() oteltrace.Tracer {
	return p.tracer
}

// Shutdown flushes and closes the exporter. A no-op when tracing is
// disabled.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}
