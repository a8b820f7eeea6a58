package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"leadscoring/internal/infrastructure"
)

// OperationTracer provides spans and metrics for runs and steps. Without
// metrics it only traces.
type OperationTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewOperationTracer creates a tracer from the providers. A nil providers
// value falls back to the global tracer without metrics.
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	if providers == nil {
		return &OperationTracer{tracer: otel.Tracer(infrastructure.InstrumentationName)}, nil
	}
	metrics, err := infrastructure.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return nil, err
	}
	return &OperationTracer{tracer: providers.Tracer, metrics: metrics}, nil
}

// Metrics returns the pipeline instruments, possibly nil
func (pt *OperationTracer) Metrics() *infrastructure.PipelineMetrics {
	return pt.metrics
}

// TraceRun starts the span covering a whole run
func (pt *OperationTracer) TraceRun(ctx context.Context, runID, trigger string) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("run.trigger", trigger),
		),
	)
}

// RecordRunCompletion closes out the run span and records run metrics
func (pt *OperationTracer) RecordRunCompletion(ctx context.Context, span trace.Span, status RunStatus, duration time.Duration, err error) {
	span.SetAttributes(
		attribute.String("run.status", string(status)),
		attribute.Float64("run.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "run completed")
	}
	pt.metrics.RecordRun(ctx, string(status), duration)
}

// TraceStep starts the span of one step attempt
func (pt *OperationTracer) TraceStep(ctx context.Context, runID, stepID string, attempt int) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "pipeline.step."+stepID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("step.id", stepID),
			attribute.Int("step.attempt", attempt),
		),
	)
}

// RecordStepCompletion closes out a step attempt
func (pt *OperationTracer) RecordStepCompletion(ctx context.Context, span trace.Span, stepID string, duration time.Duration, rows int, err error) {
	span.SetAttributes(
		attribute.Float64("step.duration_seconds", duration.Seconds()),
		attribute.Int("step.rows", rows),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if t := GetErrorType(err); t != "" {
			span.SetAttributes(attribute.String("error.type", string(t)))
		}
	} else {
		span.SetStatus(codes.Ok, "step completed")
	}
	pt.metrics.RecordStage(ctx, stepID, duration, err)
}

// RecordRetry counts a retried step
func (pt *OperationTracer) RecordRetry(ctx context.Context, stepID string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("step.retry", trace.WithAttributes(attribute.String("step.id", stepID)))
	}
	pt.metrics.RecordRetry(ctx, stepID)
}
