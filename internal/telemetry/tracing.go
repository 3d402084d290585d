// Package telemetry bootstraps the forwarder's own OTel tracer provider -
// self-observability of the forwarder process, distinct from the OTLP
// payloads it forwards on behalf of tailed containers. Kept deliberately
// small: one exporter, one provider, no adaptive sampling or on-demand
// control plane.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config tunes where spans go and how the service identifies itself.
type Config struct {
	Enabled        bool
	Endpoint       string
	ServiceName    string
	ServiceVersion string
}

// Init builds and registers a global TracerProvider exporting over
// OTLP/HTTP. When cfg.Enabled is false it registers no provider, leaving
// OTel's default no-op global provider in place, so callers can still start
// spans unconditionally without checking a flag.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build otlp exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// Tracer returns the named tracer off the globally registered provider -
// a no-op tracer before Init runs or when tracing is disabled.
func Tracer(name string) oteltrace.Tracer {
	return otel.Tracer(name)
}
