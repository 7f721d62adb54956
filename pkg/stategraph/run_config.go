package stategraph

import (
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// DefaultThreadID is used when RunConfig.ThreadID is empty.
const DefaultThreadID = "$default"

// StreamMode selects what node outputs carry in their State field.
type StreamMode int

const (
	// StreamValues emits the full state after every node. This is the default.
	StreamValues StreamMode = iota

	// StreamUpdates emits only the keys the node wrote, with merged values.
	StreamUpdates
)

// String returns the mode name.
func (m StreamMode) String() string {
	switch m {
	case StreamValues:
		return "values"
	case StreamUpdates:
		return "updates"
	default:
		return "unknown"
	}
}

// RunConfig identifies the thread a run works on and where it resumes.
type RunConfig struct {
	// ThreadID names the checkpoint history. Defaults to DefaultThreadID.
	ThreadID string

	// CheckpointID resumes from a specific checkpoint instead of the
	// thread's latest. UpdateState returns configs with it set.
	CheckpointID string

	// StreamMode selects the node output shape.
	StreamMode StreamMode

	// Parent is the run config of the enclosing graph when running as a
	// subgraph.
	Parent *RunConfig

	// NodePath lists the enclosing subgraph node IDs, outermost first.
	NodePath []string
}

// thread returns the effective thread id.
func (c RunConfig) thread() string {
	if c.ThreadID == "" {
		return DefaultThreadID
	}
	return c.ThreadID
}

// withCheckpoint returns a copy of c pointing at checkpointID.
func (c RunConfig) withCheckpoint(checkpointID string) RunConfig {
	c.ThreadID = c.thread()
	c.CheckpointID = checkpointID
	return c
}

// Input is what a run starts from: fresh arguments or a resume signal.
type Input struct {
	resume bool
	args   state.Update
}

// Args starts a new run by merging update into an empty state.
func Args(update state.Update) Input {
	return Input{args: update}
}

// ArgsMap is Args for a plain map. Keys are applied in sorted order.
func ArgsMap(m map[string]any) Input {
	return Args(state.Updates(m))
}

// Resume continues a thread from its checkpoint.
func Resume() Input {
	return Input{resume: true}
}

// IsResume reports whether the input is a resume signal.
func (in Input) IsResume() bool {
	return in.resume
}

// OutputKind tags the variant of an Output.
type OutputKind int

const (
	// OutputNode reports a completed node.
	OutputNode OutputKind = iota
	// OutputEnd is the final output of a run that reached END.
	OutputEnd
	// OutputInterrupt is the final output of a suspended run.
	OutputInterrupt
)

// String returns the kind name.
func (k OutputKind) String() string {
	switch k {
	case OutputNode:
		return "node"
	case OutputEnd:
		return "end"
	case OutputInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// InterruptReason says why a run suspended.
type InterruptReason int

const (
	// InterruptBefore fired before the node ran.
	InterruptBefore InterruptReason = iota + 1
	// InterruptAfter fired after the node ran and was checkpointed.
	InterruptAfter
	// InterruptSubgraph means a subgraph node suspended inside its inner graph.
	InterruptSubgraph
)

// String returns the reason name.
func (r InterruptReason) String() string {
	switch r {
	case InterruptBefore:
		return "before"
	case InterruptAfter:
		return "after"
	case InterruptSubgraph:
		return "subgraph"
	default:
		return "none"
	}
}

// Output is one element of a run's stream.
type Output struct {
	Kind OutputKind

	// Node is the node that completed (OutputNode), the node at which the
	// run suspended (OutputInterrupt), or END.
	Node string

	// Next is the node that will run after Node. Empty for OutputEnd.
	Next string

	// State is the state after the step. For OutputEnd and OutputInterrupt
	// it is always the full state.
	State state.State

	// Reason is set for OutputInterrupt.
	Reason InterruptReason

	// Subgraph is set when Reason is InterruptSubgraph.
	Subgraph *SubgraphInterrupt

	// Config points at the checkpoint written for this step, if any.
	Config RunConfig
}

// IsEnd reports whether the output is the END output.
func (o Output) IsEnd() bool {
	return o.Kind == OutputEnd
}

// IsInterrupt reports whether the output is an interruption.
func (o Output) IsInterrupt() bool {
	return o.Kind == OutputInterrupt
}
