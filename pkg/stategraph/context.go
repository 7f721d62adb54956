package stategraph

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
)

// Context provides execution context to nodes and routers.
// It extends context.Context with stategraph-specific services and metadata.
//
// Context is immutable after creation. The engine creates derived contexts
// for each node with updated NodeID, Attempt and an enriched logger.
type Context interface {
	context.Context

	// Services

	// Logger returns the configured logger, enriched with thread and node context.
	// Never returns nil - defaults to slog.Default() if not configured.
	Logger() *slog.Logger

	// Checkpointer returns the checkpoint store, or nil if not configured.
	// Nodes should check for nil before using.
	Checkpointer() checkpoint.Store

	// Metadata

	// RunConfig returns the configuration of the current run.
	RunConfig() RunConfig

	// ThreadID returns the thread the run works on.
	ThreadID() string

	// NodeID returns the current node being executed.
	// Empty string outside a node.
	NodeID() string

	// Attempt returns the retry attempt number (1 = first attempt).
	Attempt() int
}

// executionContext is the internal implementation of Context.
type executionContext struct {
	context.Context

	logger       *slog.Logger
	checkpointer checkpoint.Store
	runConfig    RunConfig
	nodeID       string
	attempt      int

	// runOpts are handed down to subgraph runs.
	runOpts []RunOption
}

// Logger returns the configured logger.
func (c *executionContext) Logger() *slog.Logger {
	return c.logger
}

// Checkpointer returns the checkpoint store.
func (c *executionContext) Checkpointer() checkpoint.Store {
	return c.checkpointer
}

// RunConfig returns the run configuration.
func (c *executionContext) RunConfig() RunConfig {
	return c.runConfig
}

// ThreadID returns the thread identifier.
func (c *executionContext) ThreadID() string {
	return c.runConfig.thread()
}

// NodeID returns the current node identifier.
func (c *executionContext) NodeID() string {
	return c.nodeID
}

// Attempt returns the retry attempt number.
func (c *executionContext) Attempt() int {
	return c.attempt
}

// ContextOption configures a Context.
type ContextOption func(*executionContext)

// WithLogger sets the logger for the context.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *executionContext) {
		c.logger = logger
	}
}

// WithContextCheckpointer sets the checkpoint store for the context.
func WithContextCheckpointer(store checkpoint.Store) ContextOption {
	return func(c *executionContext) {
		c.checkpointer = store
	}
}

// WithContextRunConfig sets the run configuration for the context.
func WithContextRunConfig(cfg RunConfig) ContextOption {
	return func(c *executionContext) {
		c.runConfig = cfg
	}
}

// NewContext creates a Context from a standard context. The engine builds
// its own contexts; NewContext is for calling nodes and routers directly,
// typically in tests.
//
// Example:
//
//	ctx := stategraph.NewContext(context.Background(),
//	    stategraph.WithContextRunConfig(stategraph.RunConfig{ThreadID: "t-1"}))
//	cmd, err := myNode(ctx, state.New())
func NewContext(ctx context.Context, opts ...ContextOption) Context {
	ec := &executionContext{
		Context: ctx,
		logger:  slog.Default(),
		attempt: 1,
	}

	for _, opt := range opts {
		opt(ec)
	}

	return ec
}

// withNode returns a derived context for one attempt of a node.
func (c *executionContext) withNode(ctx context.Context, nodeID string, attempt int) *executionContext {
	return &executionContext{
		Context:      ctx,
		logger:       observability.EnrichLogger(c.logger, c.runConfig.thread(), nodeID, attempt),
		checkpointer: c.checkpointer,
		runConfig:    c.runConfig,
		nodeID:       nodeID,
		attempt:      attempt,
		runOpts:      c.runOpts,
	}
}
