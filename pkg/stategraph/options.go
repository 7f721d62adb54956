package stategraph

import (
	"log/slog"

	sgerrors "github.com/randalmurphal/stategraph/pkg/stategraph/errors"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

// runConfig holds per-run execution settings.
type runConfig struct {
	maxIterations int

	// Observability
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	// Retry policy; retryNodes empty means every node
	retry      sgerrors.RetryConfig
	retryNodes map[string]bool
}

// defaultRunConfig returns the default execution configuration.
// maxIterations 0 defers to the compiled graph's limit.
func defaultRunConfig() runConfig {
	return runConfig{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		retry:   sgerrors.NoRetry,
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithMaxIterations overrides the compiled step limit for one run.
//
// This prevents infinite loops from hanging forever. If a run exceeds
// the limit, the stream fails with a MaxIterationsError.
//
// Example:
//
//	s := compiled.Stream(ctx, stategraph.Resume(), cfg, stategraph.WithMaxIterations(100))
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithObservabilityLogger sets the logger for run and node events.
// Default: slog.Default().
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables OpenTelemetry metrics for the run.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithTracing enables OpenTelemetry spans for the run and each node.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithNodeRetry retries failing nodes according to cfg. With no node IDs
// the policy applies to every node. Only errors cfg considers retryable are
// retried; by default that means errors categorized as transient.
//
// Example:
//
//	policy := sgerrors.NewRetryConfig(sgerrors.WithMaxAttempts(5))
//	s := compiled.Stream(ctx, input, cfg, stategraph.WithNodeRetry(policy, "fetch"))
func WithNodeRetry(cfg sgerrors.RetryConfig, nodes ...string) RunOption {
	return func(c *runConfig) {
		c.retry = cfg
		c.retryNodes = nil
		if len(nodes) > 0 {
			c.retryNodes = make(map[string]bool, len(nodes))
			for _, n := range nodes {
				c.retryNodes[n] = true
			}
		}
	}
}

// retryFor returns the retry policy for a node.
func (c *runConfig) retryFor(nodeID string) sgerrors.RetryConfig {
	if c.retryNodes != nil && !c.retryNodes[nodeID] {
		return sgerrors.NoRetry
	}
	return c.retry
}
