// Package telemetry wraps go.opentelemetry.io/otel/trace spans around
// wave and step execution, mirroring station's
// internal/workflows/runtime/telemetry.go StartRunSpan/StartStepSpan
// pattern but trimmed to tracing only: the teacher's package also wires
// otel/metric counters, which this module's go.mod does not carry (no
// exporter is configured at this layer; the caller wires one, spec §1
// "specific metric/log sinks" is out of scope).
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "flowcore.orchestrator"

// Tracer starts spans around one workflow execution's waves and steps.
type Tracer struct {
	tracer trace.Tracer
}

func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// StartExecution opens the root span for one workflow run.
func (t *Tracer) StartExecution(ctx context.Context, executionID, workflowName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("workflow.execute.%s", workflowName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.execution_id", executionID),
			attribute.String("workflow.name", workflowName),
		),
	)
}

// StartWave opens a span covering one wave's concurrent steps.
func (t *Tracer) StartWave(ctx context.Context, waveIndex, stepCount int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("workflow.wave.%d", waveIndex),
		trace.WithAttributes(
			attribute.Int("workflow.wave_index", waveIndex),
			attribute.Int("workflow.wave_size", stepCount),
		),
	)
}

// StartStep opens a span for one step's resolve->invoke->post-process
// pipeline.
func (t *Tracer) StartStep(ctx context.Context, stepID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("workflow.step.%s", stepID),
		trace.WithAttributes(attribute.String("workflow.step_id", stepID)),
	)
}

// EndStep closes a step span, recording its terminal status.
func EndStep(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("workflow.step_status", status))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()
}

// End closes an execution or wave span, recording success/failure.
func End(span trace.Span, success bool, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else if success {
		span.SetStatus(codes.Ok, "completed")
	}
	span.End()
}
