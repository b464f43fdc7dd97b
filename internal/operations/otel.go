package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "aqcli.operation"

// OperationTracer wraps pipeline runs and individual passes in spans, so a
// trace shows where a run spent its time.
type OperationTracer struct {
	tracer trace.Tracer
}

func NewOperationTracer() *OperationTracer {
	return &OperationTracer{tracer: otel.Tracer(TracerName)}
}

// TraceOperationExecution opens the root span for a run.
func (t *OperationTracer) TraceOperationExecution(ctx context.Context, operationID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("operation.id", operationID)))
}

// TraceStepExecution opens a child span for one pass.
func (t *OperationTracer) TraceStepExecution(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("operation.step.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID)))
}

// RecordOperationCompletion stamps the run outcome on the root span.
func (t *OperationTracer) RecordOperationCompletion(span trace.Span, duration time.Duration, status OperationStatus) {
	span.SetAttributes(
		attribute.String("operation.status", string(status)),
		attribute.Float64("operation.duration_seconds", duration.Seconds()))
	if status == OperationStatusCompleted {
		span.SetStatus(codes.Ok, "operation completed")
		return
	}
	span.SetStatus(codes.Error, fmt.Sprintf("operation finished with status %s", status))
}

// RecordStepCompletion stamps the pass outcome on its span.
func (t *OperationTracer) RecordStepCompletion(span trace.Span, stepID string, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "step execution failed")
		return
	}
	span.SetStatus(codes.Ok, "step completed")
}
