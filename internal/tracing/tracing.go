// Package tracing wires OpenTelemetry spans around the ingestion cascade
// (table write -> processor -> trigger enqueue -> notify/logger enqueue)
// for latency diagnosis. It never gates delivery: a tracing failure only
// loses observability, never an ingestion.
package tracing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config configures the ingestion-cascade tracer.
type Config struct {
	Enabled       bool
	OTLPEndpoint  string
	SamplingRatio float64
}

// Manager owns the tracer provider for process lifetime. When disabled it
// hands out a no-op tracer so callers never need a nil check.
type Manager struct {
	cfg      Config
	log      *logrus.Logger
	provider *trace.TracerProvider
	tracer   oteltrace.Tracer
}

func New(cfg Config, log *logrus.Logger) (*Manager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Manager{cfg: cfg, log: log}
	if !cfg.Enabled {
		m.tracer = otel.Tracer("dserv-noop")
		return m, nil
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("dserv"),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	m.provider = trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	m.tracer = otel.Tracer("dserv")

	m.log.WithFields(logrus.Fields{
		"endpoint": cfg.OTLPEndpoint,
		"sampling": cfg.SamplingRatio,
	}).Info("tracing initialized")
	return m, nil
}

// StartIngest opens the root span for one ingestion cascade.
func (m *Manager) StartIngest(ctx context.Context, varname string) (context.Context, oteltrace.Span) {
	return m.tracer.Start(ctx, "dserv.ingest", oteltrace.WithAttributes())
}

// StartStage opens a child span for one cascade stage (processor, trigger,
// notify, logger).
func (m *Manager) StartStage(ctx context.Context, stage string) (context.Context, oteltrace.Span) {
	return m.tracer.Start(ctx, "dserv."+stage)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
