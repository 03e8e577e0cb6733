// Package telemetry provides the OpenTelemetry tracer provider used by the
// gateway. With tracing disabled it is a no-op.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer used by villagehub components.
const InstrumentationName = "github.com/tinyvillage/villagehub"

// Providers holds the tracer provider and a shutdown function.
type Providers struct {
	TracerProvider trace.TracerProvider
	Shutdown       func(context.Context) error
}

// Tracer returns the villagehub tracer.
func (p *Providers) Tracer() trace.Tracer {
	return p.TracerProvider.Tracer(InstrumentationName)
}

// NewProviders creates a tracer provider that writes finished spans as JSON
// to w. If enabled is false or w is nil, a no-op provider is returned and
// Shutdown does nothing.
func NewProviders(enabled bool, w io.Writer, serviceName, version string) (*Providers, error) {
	if !enabled || w == nil {
		return &Providers{
			TracerProvider: noop.NewTracerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	// Syncer exports each span as it ends; a CLI run is too short for batching.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)

	return &Providers{
		TracerProvider: tp,
		Shutdown:       tp.Shutdown,
	}, nil
}
