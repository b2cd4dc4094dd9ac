// Package tracing installs the OpenTelemetry tracer provider used by the
// service spans. Without Init the global provider stays a no-op.
package tracing

import (
	"context"
	"io"
	"os"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const serviceName = "taskmgr"

// Config selects where spans are written. An empty Output means stdout.
type Config struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Output  string `toml:"output" mapstructure:"output"`
}

var (
	providerOnce sync.Once
	providerErr  error
	provider     *sdktrace.TracerProvider
)

// Init installs a stdout exporter backed provider when c.Enabled. The first
// successful call wins; the returned func flushes and stops the provider.
func Init(c Config, version string) (func(context.Context) error, error) {
	if !c.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	var w io.Writer = os.Stdout
	var f *os.File
	if c.Output != "" {
		var err error
		f, err = os.OpenFile(c.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		w = f
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	if err := InitWithExporter(version, exporter); err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		if f != nil {
			_ = f.Close()
		}
		return err
	}, nil
}

// InitWithExporter registers exporter behind the global provider.
func InitWithExporter(version string, exporter sdktrace.SpanExporter) error {
	providerOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				attribute.String("service.name", serviceName),
				attribute.String("service.version", version),
			),
		)
		if err != nil {
			providerErr = err
			return
		}
		provider = sdktrace.NewTracerProvider(
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
	})
	return providerErr
}
