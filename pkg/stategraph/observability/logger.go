// Package observability provides structured logging, metrics and tracing
// helpers for stategraph executions.
//
// Logging goes through log/slog. Metrics and traces use OpenTelemetry and
// have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds execution context to a logger.
// Returns a new logger with thread_id, node_id, and attempt fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "thread-1", "agent", 1)
//	enriched.Info("doing work") // includes thread_id, node_id, attempt
func EnrichLogger(logger *slog.Logger, threadID, nodeID string, attempt int) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
	)
}

// LogRunStart logs the start of a stream. resumed is true when the run
// continues from a checkpoint instead of fresh arguments.
func LogRunStart(logger *slog.Logger, threadID string, resumed bool) {
	if logger == nil {
		return
	}
	logger.Info("graph run starting",
		slog.String("thread_id", threadID),
		slog.Bool("resumed", resumed),
	)
}

// LogRunComplete logs a run that reached END.
func LogRunComplete(logger *slog.Logger, threadID string, durationMs float64, steps int) {
	if logger == nil {
		return
	}
	logger.Info("graph run completed",
		slog.String("thread_id", threadID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("steps", steps),
	)
}

// LogRunInterrupted logs a run that suspended at nodeID.
func LogRunInterrupted(logger *slog.Logger, threadID, nodeID, reason string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Info("graph run interrupted",
		slog.String("thread_id", threadID),
		slog.String("node_id", nodeID),
		slog.String("reason", reason),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRunError logs graph run failure.
func LogRunError(logger *slog.Logger, threadID string, err error, durationMs float64, lastNode string) {
	if logger == nil {
		return
	}
	logger.Error("graph run failed",
		slog.String("thread_id", threadID),
		slog.String("error", err.Error()),
		slog.Float64("duration_ms", durationMs),
		slog.String("last_node", lastNode),
	)
}

// LogSubgraphSuspended logs a subgraph node whose inner run suspended.
// path runs from the outer subgraph node to the innermost one.
func LogSubgraphSuspended(logger *slog.Logger, threadID string, path []string, innerNode, reason string) {
	if logger == nil {
		return
	}
	logger.Info("subgraph suspended",
		slog.String("thread_id", threadID),
		slog.Any("path", path),
		slog.String("inner_node", innerNode),
		slog.String("reason", reason),
	)
}

// LogThreadReleased logs the removal of a finished thread's checkpoints.
func LogThreadReleased(logger *slog.Logger, threadID string) {
	if logger == nil {
		return
	}
	logger.Debug("thread released", slog.String("thread_id", threadID))
}

// LogNodeStart logs node execution start.
func LogNodeStart(logger *slog.Logger, nodeID string) {
	if logger == nil {
		return
	}
	logger.Debug("node starting",
		slog.String("node_id", nodeID),
	)
}

// LogNodeComplete logs successful node completion.
func LogNodeComplete(logger *slog.Logger, nodeID, next string, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("node completed",
		slog.String("node_id", nodeID),
		slog.String("next", next),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogNodeError logs node execution error.
func LogNodeError(logger *slog.Logger, nodeID string, err error) {
	if logger == nil {
		return
	}
	logger.Error("node failed",
		slog.String("node_id", nodeID),
		slog.String("error", err.Error()),
	)
}

// LogNodeRetry logs a failed attempt that will be retried after delay.
func LogNodeRetry(logger *slog.Logger, nodeID string, attempt int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("node attempt failed, retrying",
		slog.String("node_id", nodeID),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogCheckpoint logs checkpoint creation.
func LogCheckpoint(logger *slog.Logger, nodeID, checkpointID, next string) {
	if logger == nil {
		return
	}
	logger.Debug("checkpoint saved",
		slog.String("node_id", nodeID),
		slog.String("checkpoint_id", checkpointID),
		slog.String("next", next),
	)
}

// LogCheckpointError logs a checkpoint failure.
func LogCheckpointError(logger *slog.Logger, nodeID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("checkpoint failed",
		slog.String("node_id", nodeID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
