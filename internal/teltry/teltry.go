// Package teltry wires up OpenTelemetry tracer and meter providers for the
// relationship-traversal core, following the package-level tracer/meter var
// + init()-registered instrument pattern used throughout the teacher's
// storage backends (see internal/storage/dolt/store.go's doltTracer and
// doltMetrics). Until Init is called the global otel providers are no-ops,
// so importing this package costs nothing in a host that never configures
// telemetry.
package teltry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Exporter selects which backend Init wires up.
type Exporter int

const (
	// ExporterNone disables export: Init installs no provider and leaves the
	// global otel providers as they are (no-op unless a host set its own).
	ExporterNone Exporter = iota
	// ExporterStdout writes traces and metrics to stdout, useful for local
	// development.
	ExporterStdout
	// ExporterOTLPHTTP exports metrics via OTLP/HTTP, for a host with a
	// real collector.
	ExporterOTLPHTTP
)

// Config selects the telemetry backend for Init.
type Config struct {
	Exporter    Exporter
	ServiceName string
}

var (
	shutdownFuncs []func(context.Context) error
)

// Init configures the global otel TracerProvider and MeterProvider. It is
// safe to call once at host startup; calling it more than once replaces
// the previous providers. Packages in this module never call Init
// themselves — they only read package-level Tracer()/Meter() handles,
// which resolve against whatever provider is globally installed.
func Init(ctx context.Context, cfg Config) error {
	switch cfg.Exporter {
	case ExporterNone:
		return nil
	case ExporterStdout:
		traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("teltry: stdout trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

		metricExp, err := stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("teltry: stdout metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		return nil
	case ExporterOTLPHTTP:
		metricExp, err := otlpmetrichttp.New(ctx)
		if err != nil {
			return fmt.Errorf("teltry: otlp metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)))
		otel.SetMeterProvider(mp)
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
		return nil
	default:
		return fmt.Errorf("teltry: unknown exporter %d", cfg.Exporter)
	}
}

// Shutdown flushes and releases any providers installed by Init.
func Shutdown(ctx context.Context) error {
	var firstErr error
	for _, fn := range shutdownFuncs {
		if err := fn(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	shutdownFuncs = nil
	return firstErr
}

const instrumentationName = "github.com/relgraph/relgraph/internal/relcore"

// Tracer returns the package-wide tracer for the core subsystem.
func Tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// Meter returns the package-wide meter for the core subsystem.
func Meter() metric.Meter { return otel.Meter(instrumentationName) }
