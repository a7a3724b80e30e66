// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/n1n-api/xiaoshubao/configapi"
)

const (
	// Metric names and attributes according to the Semantic Conventions for
	// Generative AI Metrics, plus project attributes in their own namespace.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/

	genaiMetricClientOperationDuration = "gen_ai.client.operation.duration"
	genaiMetricServerRequestDuration   = "gen_ai.server.request.duration"
	metricPageRetries                  = "xiaoshubao.page.retries"

	genaiAttributeOperationName = "gen_ai.operation.name"
	genaiAttributeProviderName  = "gen_ai.provider.name"
	genaiAttributeRequestModel  = "gen_ai.request.model"
	genaiAttributeErrorType     = "error.type"
	attributePhase              = "xiaoshubao.phase"

	genaiOperationImageGeneration = "image_generation"
	genaiOperationChat            = "chat"
	genaiProviderOpenAI           = "openai"
	genaiProviderGemini           = "gcp.gemini"
	genaiProviderAnthropic        = "anthropic"
	genaiErrorTypeFallback        = "_OTHER"

	unknown = "unknown"
)

// genAI holds the instruments shared by all metric instances created from one
// factory.
type genAI struct {
	// operationDuration is the duration of a single upstream generation call,
	// including in-process retries.
	operationDuration metric.Float64Histogram
	// requestLatency is the duration of a whole task, from the first page to
	// the finish summary.
	requestLatency metric.Float64Histogram
	// pageRetries counts retry attempts after a failed generation call.
	pageRetries metric.Float64Counter
}

func newGenAI(meter metric.Meter) *genAI {
	return &genAI{
		operationDuration: mustRegisterHistogram(meter,
			genaiMetricClientOperationDuration,
			metric.WithDescription("Duration of a single generation operation."),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92),
		),
		requestLatency: mustRegisterHistogram(meter,
			genaiMetricServerRequestDuration,
			metric.WithDescription("Time spent processing a generation task."),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92),
		),
		pageRetries: mustRegisterCounter(meter,
			metricPageRetries,
			metric.WithDescription("Number of page generation retry attempts."),
			metric.WithUnit("{retry}"),
		),
	}
}

func mustRegisterHistogram(meter metric.Meter, name string, options ...metric.Float64HistogramOption) metric.Float64Histogram {
	h, err := meter.Float64Histogram(name, options...)
	if err != nil {
		panic(err)
	}
	return h
}

func mustRegisterCounter(meter metric.Meter, name string, options ...metric.Float64CounterOption) metric.Float64Counter {
	c, err := meter.Float64Counter(name, options...)
	if err != nil {
		panic(err)
	}
	return c
}

// GenerationMetrics records the metrics of one generation task. Instances are
// not safe for concurrent Set calls; set the labels before workers start.
type GenerationMetrics interface {
	// StartRequest initializes timing for a new task.
	StartRequest()
	// SetModel sets the model label.
	SetModel(model string)
	// SetProvider sets the provider label. Use ProviderName or
	// TextProviderName to map a configured provider type.
	SetProvider(name string)
	// RecordPageGeneration records one finished upstream generation call.
	RecordPageGeneration(ctx context.Context, success bool, phase string, elapsed time.Duration)
	// RecordRetry counts one retry attempt.
	RecordRetry(ctx context.Context)
	// RecordRequestCompletion records the task duration with its outcome.
	RecordRequestCompletion(ctx context.Context, success bool)
}

// GenerationMetricsFactory creates a GenerationMetrics instance per task.
type GenerationMetricsFactory func() GenerationMetrics

// ProviderName maps an image provider type to the well-known values of
// gen_ai.provider.name:
// https://opentelemetry.io/docs/specs/semconv/attributes-registry/gen-ai/
func ProviderName(typ configapi.ImageProviderType) string {
	switch typ {
	case configapi.ImageProviderNativeMultimodal:
		return genaiProviderGemini
	case configapi.ImageProviderOpenAICompatible:
		return genaiProviderOpenAI
	default:
		return string(typ)
	}
}

// TextProviderName maps a text provider type to the well-known values of
// gen_ai.provider.name.
func TextProviderName(typ configapi.TextProviderType) string {
	switch typ {
	case configapi.TextProviderGoogleGemini:
		return genaiProviderGemini
	case configapi.TextProviderOpenAICompatible:
		return genaiProviderOpenAI
	case configapi.TextProviderAnthropic:
		return genaiProviderAnthropic
	default:
		return string(typ)
	}
}

// NewGenerationFactory returns a factory for image generation task metrics.
func NewGenerationFactory(meter metric.Meter) GenerationMetricsFactory {
	m := newGenAI(meter)
	return func() GenerationMetrics {
		return &generation{metrics: m, operation: genaiOperationImageGeneration, model: unknown, provider: unknown}
	}
}

// NewOutlineFactory returns a factory for outline request metrics. Outline
// requests are chat completions in the semantic conventions.
func NewOutlineFactory(meter metric.Meter) GenerationMetricsFactory {
	m := newGenAI(meter)
	return func() GenerationMetrics {
		return &generation{metrics: m, operation: genaiOperationChat, model: unknown, provider: unknown}
	}
}

type generation struct {
	metrics      *genAI
	operation    string
	requestStart time.Time
	model        string
	provider     string
}

// StartRequest implements [GenerationMetrics.StartRequest].
func (g *generation) StartRequest() {
	g.requestStart = time.Now()
}

// SetModel implements [GenerationMetrics.SetModel].
func (g *generation) SetModel(model string) {
	g.model = model
}

// SetProvider implements [GenerationMetrics.SetProvider].
func (g *generation) SetProvider(name string) {
	g.provider = name
}

// RecordPageGeneration implements [GenerationMetrics.RecordPageGeneration].
func (g *generation) RecordPageGeneration(ctx context.Context, success bool, phase string, elapsed time.Duration) {
	var extra []attribute.KeyValue
	if phase != "" {
		extra = append(extra, attribute.Key(attributePhase).String(phase))
	}
	if !success {
		// No typed low-cardinality error values yet, so record the fallback.
		// See: https://opentelemetry.io/docs/specs/semconv/attributes-registry/error/#error-type
		extra = append(extra, attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback))
	}
	g.metrics.operationDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributeSet(g.baseAttributes(extra...)))
}

// RecordRetry implements [GenerationMetrics.RecordRetry].
func (g *generation) RecordRetry(ctx context.Context) {
	g.metrics.pageRetries.Add(ctx, 1, metric.WithAttributeSet(g.baseAttributes()))
}

// RecordRequestCompletion implements [GenerationMetrics.RecordRequestCompletion].
func (g *generation) RecordRequestCompletion(ctx context.Context, success bool) {
	var extra []attribute.KeyValue
	if !success {
		extra = append(extra, attribute.Key(genaiAttributeErrorType).String(genaiErrorTypeFallback))
	}
	g.metrics.requestLatency.Record(ctx, time.Since(g.requestStart).Seconds(), metric.WithAttributeSet(g.baseAttributes(extra...)))
}

func (g *generation) baseAttributes(extra ...attribute.KeyValue) attribute.Set {
	attrs := make([]attribute.KeyValue, 0, 3+len(extra))
	attrs = append(attrs,
		attribute.Key(genaiAttributeOperationName).String(g.operation),
		attribute.Key(genaiAttributeProviderName).String(g.provider),
		attribute.Key(genaiAttributeRequestModel).String(g.model),
	)
	attrs = append(attrs, extra...)
	return attribute.NewSet(attrs...)
}
