// Package tracing configures the OpenTelemetry tracer used to emit one
// span per invocation (language, timeout, cold/warm).
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Config controls whether and how spans are exported.
type Config struct {
	Enabled     bool
	Endpoint    string // host:port of an OTLP/HTTP collector
	ServiceName string
	SampleRate  float64 // 0.0-1.0; ignored (always-sample) at 0 or below and at 1.0 or above
}

type provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

var global = &provider{tracer: trace.NewNoopTracerProvider().Tracer("")}

// Init installs the global tracer provider. Disabled configs leave the
// no-op tracer in place, so callers never need to branch on Enabled
// before calling Tracer().
func Init(ctx context.Context, cfg Config) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "kestrel"
	}
	if !cfg.Enabled {
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return fmt.Errorf("build resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("create otlp exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1.0 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	global = &provider{tp: tp, tracer: tp.Tracer(cfg.ServiceName)}
	return nil
}

// Shutdown flushes and closes the exporter, if one was started.
func Shutdown(ctx context.Context) error {
	if global.tp == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return global.tp.Shutdown(ctx)
}

// Tracer returns the process-wide tracer. Safe to call before Init; it
// returns a no-op tracer until Init runs (or permanently, if tracing is
// disabled).
func Tracer() trace.Tracer {
	return global.tracer
}
