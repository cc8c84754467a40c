package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/skypro1111/tcp-http-server/internal/config"
)

// initTracing installs the span pipeline described by cfg and returns the
// provider together with a shutdown func that flushes pending spans.
// When tracing is disabled the global no-op provider is returned.
func initTracing(cfg config.TracingConfig, logger *slog.Logger) (trace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Enabled {
		return otel.GetTracerProvider(), func(context.Context) error { return nil }, nil
	}

	var output io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace output %s: %w", cfg.Output, err)
		}
		output = file
		closer = file
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(output))
	if err != nil {
		closer.Close()
		return nil, nil, fmt.Errorf("failed to create span exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", version),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Tracing enabled",
		slog.String("output", cfg.Output),
		slog.Float64("sample_ratio", cfg.SampleRatio),
	)

	shutdown := func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return tp, shutdown, nil
}
