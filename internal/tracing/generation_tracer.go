// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	attributeTaskID         = "xiaoshubao.task.id"
	attributePagesTotal     = "xiaoshubao.pages.total"
	attributePagesCompleted = "xiaoshubao.pages.completed"
	attributePagesFailed    = "xiaoshubao.pages.failed"
	attributePageIndex      = "xiaoshubao.page.index"
	attributePagePhase      = "xiaoshubao.page.phase"
)

// GenerationTracer starts spans for generation tasks.
type GenerationTracer interface {
	// StartTask starts a span for a whole task, extracting any parent trace
	// context from the request headers. The returned span is nil when the
	// span is not sampled; callers must nil-check.
	StartTask(ctx context.Context, taskID string, total int, headers map[string]string) (context.Context, TaskSpan)
}

// TaskSpan records the lifecycle of one generation task.
type TaskSpan interface {
	// RecordPage adds an event for one finished page.
	RecordPage(index int, phase string, success bool)
	// End closes the span with the task summary.
	End(completed, failed int)
}

func newGenerationTracer(tracer trace.Tracer, propagator propagation.TextMapPropagator) GenerationTracer {
	return &generationTracer{tracer: tracer, propagator: propagator}
}

type generationTracer struct {
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

// StartTask implements the same method as documented on GenerationTracer.
func (t *generationTracer) StartTask(ctx context.Context, taskID string, total int, headers map[string]string) (context.Context, TaskSpan) {
	parentCtx := t.propagator.Extract(ctx, propagation.MapCarrier(headers))

	newCtx, span := t.tracer.Start(parentCtx, "GenerateImages",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(attributeTaskID, taskID),
			attribute.Int(attributePagesTotal, total),
		))
	if !span.IsRecording() {
		return newCtx, nil
	}
	return newCtx, &taskSpan{span: span}
}

type taskSpan struct {
	span trace.Span
}

// RecordPage implements the same method as documented on TaskSpan.
func (s *taskSpan) RecordPage(index int, phase string, success bool) {
	s.span.AddEvent("page", trace.WithAttributes(
		attribute.Int(attributePageIndex, index),
		attribute.String(attributePagePhase, phase),
		attribute.Bool("success", success),
	))
}

// End implements the same method as documented on TaskSpan.
func (s *taskSpan) End(completed, failed int) {
	s.span.SetAttributes(
		attribute.Int(attributePagesCompleted, completed),
		attribute.Int(attributePagesFailed, failed),
	)
	if failed > 0 {
		s.span.SetStatus(codes.Error, "some pages failed")
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// NoopGenerationTracer starts nothing.
type NoopGenerationTracer struct{}

// StartTask implements the same method as documented on GenerationTracer.
func (NoopGenerationTracer) StartTask(ctx context.Context, _ string, _ int, _ map[string]string) (context.Context, TaskSpan) {
	return ctx, nil
}
