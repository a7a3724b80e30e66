// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics configures OpenTelemetry metrics for the backend and
// provides the instruments recorded by the generation engine and the outline
// service.
package metrics

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// NewMetricsFromEnv configures an OpenTelemetry MeterProvider from the
// standard OTEL environment variables, always incorporating the provided
// Prometheus reader. It returns a metric.Meter for instrumentation and a
// shutdown function for the provider.
//
// The stdout parameter receives the console exporter output (use os.Stdout in
// production). Environment variables checked directly:
//   - OTEL_SDK_DISABLED: if "true", no exporters beyond promReader are added.
//   - OTEL_METRICS_EXPORTER: "none", "console", "prometheus" or "otlp".
//   - OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT:
//     enables OTLP when set.
func NewMetricsFromEnv(ctx context.Context, stdout io.Writer, promReader sdkmetric.Reader) (metric.Meter, func(context.Context) error, error) {
	options := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if os.Getenv("OTEL_SDK_DISABLED") != "true" {
		exporter := os.Getenv("OTEL_METRICS_EXPORTER")
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""

		if exporter == "console" || (exporter != "none" && exporter != "prometheus" && hasOTLPEndpoint) {
			res, err := buildResource(ctx)
			if err != nil {
				return nil, nil, err
			}
			options = append(options, sdkmetric.WithResource(res))

			if exporter == "console" {
				exp, err := stdoutmetric.New(stdoutmetric.WithWriter(stdout))
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
			} else {
				// autoexport handles the OTLP protocol selection and wraps the
				// exporter in a PeriodicReader itself.
				otelReader, err := autoexport.NewMetricReader(ctx)
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(otelReader))
			}
		}
	}

	mp := sdkmetric.NewMeterProvider(options...)
	return mp.Meter("n1n-api/xiaoshubao"), mp.Shutdown, nil
}

// buildResource merges default resource attributes, the fallback service name
// and any environment overrides, in that precedence order.
func buildResource(ctx context.Context) (*resource.Resource, error) {
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName("xiaoshubao")))
	if err != nil {
		return nil, err
	}
	return resource.Merge(res, envRes)
}
