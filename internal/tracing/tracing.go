// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tracing configures OpenTelemetry tracing for generation tasks.
// Everything is noop unless enabled through the standard OTEL environment
// variables, so the engine can call unconditionally.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Tracing is the root of the tracing graph.
type Tracing interface {
	// GenerationTracer returns the tracer for generation tasks.
	GenerationTracer() GenerationTracer
	// Shutdown flushes and stops the underlying provider.
	Shutdown(ctx context.Context) error
}

var _ Tracing = (*tracingImpl)(nil)

type tracingImpl struct {
	generationTracer GenerationTracer
	// shutdown is nil when we didn't create the provider.
	shutdown func(context.Context) error
}

// GenerationTracer implements the same method as documented on Tracing.
func (t *tracingImpl) GenerationTracer() GenerationTracer {
	return t.generationTracer
}

// Shutdown implements the same method as documented on Tracing.
func (t *tracingImpl) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// NoopTracing is a Tracing that records nothing.
type NoopTracing struct{}

// GenerationTracer implements the same method as documented on Tracing.
func (NoopTracing) GenerationTracer() GenerationTracer { return NoopGenerationTracer{} }

// Shutdown implements the same method as documented on Tracing.
func (NoopTracing) Shutdown(context.Context) error { return nil }

// NewTracingFromEnv configures OpenTelemetry tracing based on environment
// variables. Returns a tracing graph that is noop when disabled.
func NewTracingFromEnv(ctx context.Context, stdout io.Writer) (Tracing, error) {
	exporter := os.Getenv("OTEL_TRACES_EXPORTER")
	if os.Getenv("OTEL_SDK_DISABLED") == "true" || exporter == "none" ||
		(exporter == "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "") {
		return NoopTracing{}, nil
	}

	// Merge order: default -> fallback service name -> env, so the
	// environment takes precedence.
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource from env: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName("xiaoshubao")))
	if err != nil {
		return nil, fmt.Errorf("failed to merge default resources: %w", err)
	}
	res, err = resource.Merge(res, envRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge env resource: %w", err)
	}

	// Console is special cased to a synchronous exporter for tests; everything
	// else goes through autoexport with the batcher configured via OTEL_BSP_*.
	var tp *sdktrace.TracerProvider
	if exporter == "console" {
		stdoutExporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(stdoutExporter),
			sdktrace.WithResource(res),
		)
	} else {
		autoExporter, err := autoexport.NewSpanExporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(autoExporter),
			sdktrace.WithResource(res),
		)
	}

	return &tracingImpl{
		generationTracer: newGenerationTracer(
			tp.Tracer("n1n-api/xiaoshubao"),
			autoprop.NewTextMapPropagator(),
		),
		shutdown: tp.Shutdown,
	}, nil
}
