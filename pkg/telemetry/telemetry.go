// Package telemetry wires structured logging, tracing and metrics for the CLIs.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	slogotel "github.com/remychantenay/slog-otel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Options configures Setup
type Options struct {
	ServiceName string
	// Endpoint is an OTLP gRPC collector address; empty disables export
	Endpoint string
	LogLevel string
	// LogOutput defaults to stderr
	LogOutput io.Writer
}

// Setup installs the global logger, tracer provider and meter provider. The
// returned function flushes and stops them.
func Setup(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	slog.SetDefault(slog.New(slogotel.OtelHandler{
		Next: slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.LogLevel)}),
	}))

	otel.SetTextMapPropagator(propagation.TraceContext{})

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(opts.ServiceName),
	)

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if opts.Endpoint != "" {
		traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithEndpoint(opts.Endpoint))
		if err != nil {
			return shutdown, err
		}
		metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithInsecure(), otlpmetricgrpc.WithEndpoint(opts.Endpoint))
		if err != nil {
			return shutdown, errors.Join(err, traceExporter.Shutdown(ctx))
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(traceExporter))
		metricOpts = append(metricOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	}

	tp := sdktrace.NewTracerProvider(traceOpts...)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(metricOpts...)
	shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	otel.SetMeterProvider(mp)

	slog.DebugContext(ctx, "telemetry ready", "service", opts.ServiceName, "export", opts.Endpoint != "")
	return shutdown, nil
}

// ParseLevel maps debug, info, warn or error to a slog level; anything else is info
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
