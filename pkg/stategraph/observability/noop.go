package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that discards every measurement.
// Runs use it unless WithMetrics enables recording.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordNodeExecution does nothing.
func (NoopMetrics) RecordNodeExecution(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordGraphRun does nothing.
func (NoopMetrics) RecordGraphRun(_ context.Context, _ string, _ time.Duration) {}

// RecordCheckpoint does nothing.
func (NoopMetrics) RecordCheckpoint(_ context.Context, _ string, _ int) {}

// RecordInterrupt does nothing.
func (NoopMetrics) RecordInterrupt(_ context.Context, _, _ string) {}

// NoopSpanManager is a SpanManager that starts non-recording spans and
// leaves contexts untouched. Runs use it unless WithTracing enables spans.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

// noopSpan is shared by every span the manager starts.
var noopSpan = noop.Span{}

// StartRunSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRunSpan(ctx context.Context, _ RunInfo) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartNodeSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartNodeSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// AddRetryEvent does nothing.
func (NoopSpanManager) AddRetryEvent(_ context.Context, _ int, _ time.Duration, _ error) {}

// AddCheckpointEvent does nothing.
func (NoopSpanManager) AddCheckpointEvent(_ context.Context, _, _, _ string) {}

// AddInterruptEvent does nothing.
func (NoopSpanManager) AddInterruptEvent(_ context.Context, _, _ string) {}

// EndRunSpan does nothing.
func (NoopSpanManager) EndRunSpan(_ trace.Span, _ string, _ error) {}

// EndSpan does nothing.
func (NoopSpanManager) EndSpan(_ trace.Span, _ error) {}
