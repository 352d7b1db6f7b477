// Package tracing wires OTLP span export for the node. Without a configured
// endpoint the global tracer stays a no-op, so instrumented code paths cost
// nothing in the common case.
package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "dromio"

// Config configures the OTLP trace exporter.
type Config struct {
	Endpoint string // OTLP endpoint (e.g. "localhost:4317"); empty disables export
	Protocol string // "grpc" (default) or "http"
	Insecure bool   // skip TLS for local dev
}

// Tracer returns the process tracer. Before Setup (or without an endpoint)
// it is the otel no-op tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(serviceName)
}

// Setup installs the global tracer provider and returns a shutdown func that
// flushes remaining spans.
func Setup(ctx context.Context, cfg Config, serviceVersion string) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Protocol {
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default: // "grpc"
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("otel exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxExportBatchSize(100),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	slog.Info("otlp trace export enabled", "endpoint", cfg.Endpoint, "protocol", cfg.Protocol)

	return func(ctx context.Context) error {
		slog.Info("otlp exporter shutting down")
		return tp.Shutdown(ctx)
	}, nil
}
