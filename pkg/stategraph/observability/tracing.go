package observability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer uses the global OTel tracer provider.
var tracer = otel.Tracer("stategraph")

// Span and event names.
const (
	SpanRun         = "stategraph.run"
	SpanNodePrefix  = "stategraph.node."
	EventRetry      = "retry"
	EventCheckpoint = "checkpoint"
	EventInterrupt  = "interrupt"
)

// RunInfo describes the stream a run span covers.
type RunInfo struct {
	ThreadID string
	// CheckpointID is the checkpoint a resumed run starts from.
	CheckpointID string
	Resumed      bool
	// Path lists the enclosing subgraph nodes when the run is nested.
	Path []string
}

// SpanManager handles trace span lifecycle for runs and node executions.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartRunSpan starts the span for one stream of a thread.
	StartRunSpan(ctx context.Context, run RunInfo) (context.Context, trace.Span)

	// StartNodeSpan starts a child span for a node execution, retries included.
	StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span)

	// AddRetryEvent marks a failed attempt on the node span in ctx.
	AddRetryEvent(ctx context.Context, attempt int, delay time.Duration, err error)

	// AddCheckpointEvent marks a checkpoint write on the run span in ctx.
	AddCheckpointEvent(ctx context.Context, checkpointID, createdNode, nextNode string)

	// AddInterruptEvent marks a suspension on the run span in ctx.
	AddInterruptEvent(ctx context.Context, nodeID, reason string)

	// EndRunSpan completes a run span with one of the Outcome values.
	EndRunSpan(span trace.Span, outcome string, err error)

	// EndSpan completes a node span, recording err if set.
	EndSpan(span trace.Span, err error)
}

type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// Spans go to the global tracer provider; install one with
// otel.SetTracerProvider before streaming.
func NewSpanManager() SpanManager {
	return otelSpanManager{}
}

func (otelSpanManager) StartRunSpan(ctx context.Context, run RunInfo) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("thread.id", run.ThreadID),
		attribute.Bool("run.resumed", run.Resumed),
	}
	if run.CheckpointID != "" {
		attrs = append(attrs, attribute.String("checkpoint.id", run.CheckpointID))
	}
	if len(run.Path) > 0 {
		attrs = append(attrs, attribute.String("subgraph.path", strings.Join(run.Path, "/")))
	}
	return tracer.Start(ctx, SpanRun,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) StartNodeSpan(ctx context.Context, nodeID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, SpanNodePrefix+nodeID,
		trace.WithAttributes(attribute.String("node.id", nodeID)),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (otelSpanManager) AddRetryEvent(ctx context.Context, attempt int, delay time.Duration, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Int("attempt", attempt),
		attribute.Int64("delay_ms", delay.Milliseconds()),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent(EventRetry, trace.WithAttributes(attrs...))
}

func (otelSpanManager) AddCheckpointEvent(ctx context.Context, checkpointID, createdNode, nextNode string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventCheckpoint, trace.WithAttributes(
		attribute.String("checkpoint.id", checkpointID),
		attribute.String("node.id", createdNode),
		attribute.String("next", nextNode),
	))
}

func (otelSpanManager) AddInterruptEvent(ctx context.Context, nodeID, reason string) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(EventInterrupt, trace.WithAttributes(
		attribute.String("node.id", nodeID),
		attribute.String("reason", reason),
	))
}

func (m otelSpanManager) EndRunSpan(span trace.Span, outcome string, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("run.outcome", outcome))
	m.EndSpan(span, err)
}

func (otelSpanManager) EndSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
