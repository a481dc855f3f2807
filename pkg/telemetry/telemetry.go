// Package telemetry wraps OpenTelemetry tracer bootstrap for the
// compiler pipeline, adapted from the teacher's pkg/tracing (W3C
// propagation dropped: the pipeline has no inbound HTTP request to
// extract context from outside of udonc serve, which injects directly).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Config holds the configuration for pipeline tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// ExporterType is "stdout" or "otlp".
	ExporterType string
	OTLPEndpoint string
	SamplingRate float64
	Enabled      bool
}

// DefaultConfig returns a development-mode configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "udonc",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		ExporterType:   "stdout",
		SamplingRate:   1.0,
		Enabled:        true,
	}
}

// Provider wraps the OpenTelemetry tracer provider used across the
// lower/optimize/lower-to-udon/assemble stages.
type Provider struct {
	provider *sdktrace.TracerProvider
	config   *Config
}

// Init initializes the OpenTelemetry tracing system. The returned
// Provider must be shut down when the compile driver exits.
func Init(config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Provider{provider: sdktrace.NewTracerProvider(), config: config}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error

	switch config.ExporterType {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		endpoint := config.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		exporter, err = otlptrace.New(context.Background(), client)
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.ExporterType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)

	return &Provider{provider: tp, config: config}, nil
}

// Shutdown gracefully shuts down the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Tracer returns the pipeline tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p.provider == nil {
		return otel.Tracer("udonc")
	}
	return p.provider.Tracer("udonc")
}

// Stage starts a span named "compile.<stage>", runs fn, and records any
// error returned on the span before ending it. This is the primitive
// cmd/udonc's compile driver wraps each of lower/optimize/lower-to-udon/
// assemble in.
func (p *Provider) Stage(ctx context.Context, stage string, fn func(context.Context) error) error {
	ctx, span := p.Tracer().Start(ctx, "compile."+stage)
	defer span.End()

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
