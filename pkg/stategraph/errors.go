package stategraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Sentinel errors for graph building and compilation.
var (
	// ErrNoEntryPoint indicates START has no outgoing edge.
	ErrNoEntryPoint = errors.New("entry point not set")

	// ErrNodeNotFound indicates an edge, route or interrupt references a non-existent node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrUnreachableNode indicates a node cannot be reached from START.
	ErrUnreachableNode = errors.New("node unreachable from START")

	// ErrNoOutgoingEdge indicates a node has no edge leaving it.
	ErrNoOutgoingEdge = errors.New("node has no outgoing edge")

	// ErrConflictingEdges indicates a node has more than one outgoing edge.
	ErrConflictingEdges = errors.New("conflicting outgoing edges")

	// ErrInvalidEdge indicates an edge leaves END or enters START.
	ErrInvalidEdge = errors.New("invalid edge")
)

// Sentinel errors for execution.
var (
	// ErrMaxIterations indicates the execution loop exceeded the configured limit.
	ErrMaxIterations = errors.New("exceeded maximum iterations")

	// ErrNilContext indicates Stream() was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrInvalidRouterResult indicates a router function returned an empty string.
	ErrInvalidRouterResult = errors.New("router returned empty string")

	// ErrUnknownRoute indicates a router returned a label absent from its routes.
	ErrUnknownRoute = errors.New("router returned unknown route")

	// ErrGotoTargetNotFound indicates a Command named a node that does not exist.
	ErrGotoTargetNotFound = errors.New("goto target not found")
)

// Sentinel errors for checkpointing and resume.
var (
	// ErrCheckpointerRequired indicates an operation needs a checkpoint store
	// and the graph was compiled without one.
	ErrCheckpointerRequired = errors.New("checkpointer required")

	// ErrNoCheckpoints indicates no matching checkpoint exists for the thread.
	ErrNoCheckpoints = errors.New("no checkpoints found for thread")

	// ErrInvalidResumeNode indicates the checkpoint's next node doesn't exist in the graph.
	ErrInvalidResumeNode = errors.New("invalid resume node")

	// ErrCheckpointVersionMismatch indicates the checkpoint version is incompatible.
	ErrCheckpointVersionMismatch = errors.New("checkpoint version mismatch")
)

// CheckpointError wraps errors from checkpoint operations.
type CheckpointError struct {
	// NodeID is the node where checkpointing failed.
	NodeID string
	// Op is the operation that failed ("save", "load", "release").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s at node %s: %v", e.Op, e.NodeID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CheckpointError) Unwrap() error {
	return e.Err
}

// NodeError wraps an error with node context.
// It provides information about which node failed and what operation was attempted.
type NodeError struct {
	// NodeID is the identifier of the node that failed.
	NodeID string
	// Op is the operation that failed (e.g., "execute").
	Op string
	// Attempts is how many times the node ran, counting retries.
	Attempts int
	// Err is the underlying error from the node.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("node %s: %s (after %d attempts): %v", e.NodeID, e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("node %s: %s: %v", e.NodeID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// PanicError captures panic information from node execution.
// It includes the stack trace for debugging.
type PanicError struct {
	// NodeID is the identifier of the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the full stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// CancellationError captures the state when execution was cancelled.
// The last checkpoint written before cancellation remains resumable.
type CancellationError struct {
	// NodeID is the node that was about to execute or was executing.
	NodeID string
	// State is the state at cancellation.
	State state.State
	// Cause is the underlying cancellation cause (context.Canceled or context.DeadlineExceeded).
	Cause error
	// WasExecuting is true if cancellation occurred during node execution.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("cancelled during node %s: %v", e.NodeID, e.Cause)
	}
	return fmt.Sprintf("cancelled before node %s: %v", e.NodeID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CancellationError) Unwrap() error {
	return e.Cause
}

// RouterError wraps errors from conditional edge routing and Command.Goto.
// It provides context about which router failed and what it returned.
type RouterError struct {
	// FromNode is the node with the conditional edge.
	FromNode string
	// Returned is the label (or goto target) that failed to resolve.
	Returned string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RouterError) Error() string {
	return fmt.Sprintf("router from %s returned %q: %v", e.FromNode, e.Returned, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RouterError) Unwrap() error {
	return e.Err
}

// MaxIterationsError provides context when the loop limit is exceeded.
// It includes the state at termination for inspection.
type MaxIterationsError struct {
	// Max is the configured iteration limit.
	Max int
	// LastNodeID is the node that would have executed next.
	LastNodeID string
	// State is the state at termination.
	State state.State
}

// Error implements the error interface.
func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("exceeded maximum iterations (%d) at node %s", e.Max, e.LastNodeID)
}

// Unwrap returns ErrMaxIterations for errors.Is support.
func (e *MaxIterationsError) Unwrap() error {
	return ErrMaxIterations
}

// SubgraphInterrupt reports that a subgraph suspended before reaching its
// END. It is a control signal, not a failure: the enclosing engine records
// a resumable checkpoint and ends its stream with an InterruptSubgraph
// output carrying the signal.
type SubgraphInterrupt struct {
	// Path lists the subgraph node IDs from the outermost graph that saw the
	// signal down to the graph that actually suspended.
	Path []string
	// NodeID is the subgraph node at the level that returned this signal.
	NodeID string
	// InterruptedNode is the innermost node at which execution suspended.
	InterruptedNode string
	// Reason is why the innermost run suspended.
	Reason InterruptReason
	// State is the inner state with ResumeSubgraphKey set, ready to merge
	// into the outer state.
	State state.State
}

// Error implements the error interface.
func (e *SubgraphInterrupt) Error() string {
	return fmt.Sprintf("subgraph %s interrupted %s node %s",
		strings.Join(e.Path, "/"), e.Reason, e.InterruptedNode)
}

// AsSubgraphInterrupt extracts a SubgraphInterrupt from anywhere in err's
// chain.
func AsSubgraphInterrupt(err error) (*SubgraphInterrupt, bool) {
	var sig *SubgraphInterrupt
	if errors.As(err, &sig) {
		return sig, true
	}
	return nil, false
}
