package main

import (
	"context"
	"fmt"
	"io"

	"github.com/ledgerdocs/procflow/internal/config"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// setupTracing returns the tracer provider for the engine and a function flushing pending spans.
func setupTracing(ctx context.Context, cfg *config.Config, w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	var opt sdktrace.TracerProviderOption

	switch cfg.Tracing.Exporter {
	case "none", "":
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil

	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("creating stdout exporter: %w", err)
		}

		opt = sdktrace.WithSyncer(exp)

	case "otlp":
		clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Tracing.Endpoint)}
		if cfg.Tracing.Insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}

		exp, err := otlptrace.New(ctx, otlptracehttp.NewClient(clientOpts...))
		if err != nil {
			return nil, nil, fmt.Errorf("creating otlp exporter: %w", err)
		}

		opt = sdktrace.WithBatcher(exp)

	default:
		return nil, nil, fmt.Errorf("unknown tracing exporter %q", cfg.Tracing.Exporter)
	}

	r := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("procflow"),
		attribute.String("tenant", cfg.Tenant),
	)

	tp := sdktrace.NewTracerProvider(opt, sdktrace.WithResource(r))

	return tp, tp.Shutdown, nil
}
