package observability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is used for spans around runs, scenario batches and store writes.
// It is a no-op until InitTracing installs a provider.
var Tracer trace.Tracer = otel.Tracer("aquanet")

type TracingConfig struct {
	ServiceName string
	Version     string
	Endpoint    string // OTLP gRPC host:port; empty disables export
	Insecure    bool
	SampleRatio float64
}

var (
	tracingOnce     sync.Once
	tracingShutdown = func(context.Context) error { return nil }
)

// InitTracing installs a global tracer provider exporting over OTLP gRPC.
// Without an endpoint it leaves the no-op provider in place. The returned
// function flushes and stops the exporter.
func InitTracing(ctx context.Context, cfg TracingConfig) func(context.Context) error {
	tracingOnce.Do(func() {
		endpoint := strings.TrimSpace(cfg.Endpoint)
		if endpoint == "" {
			return
		}
		name := strings.TrimSpace(cfg.ServiceName)
		if name == "" {
			name = "aquanet"
		}
		res, err := resource.New(ctx, resource.WithAttributes(
			attribute.String("service.name", name),
			attribute.String("service.version", cfg.Version),
		))
		if err != nil {
			slog.Warn("otel resource init failed (continuing)", "error", err)
		}

		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			slog.Warn("otel exporter init failed, tracing disabled", "error", err)
			return
		}
		ratio := cfg.SampleRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 1
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		Tracer = tp.Tracer("aquanet")
		tracingShutdown = tp.Shutdown
		slog.Info("otel tracing initialized", "service", name, "endpoint", endpoint)
	})
	return tracingShutdown
}
