package stategraph

import "github.com/randalmurphal/stategraph/pkg/stategraph/state"

// START is the virtual entry node. Its outgoing edge selects the first node
// to run. It never carries an action.
const START = "__start__"

// END is the terminal node identifier.
// Use this as an edge target to indicate the graph should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and the current state and return a
// Command holding the partial update to merge.
//
// State is immutable: nodes describe changes through state.Update rather
// than mutating what they were given.
//
// Example:
//
//	func increment(ctx stategraph.Context, s state.State) (stategraph.Command, error) {
//	    n := state.ValueOr(s, "count", 0)
//	    return stategraph.Continue(state.NewUpdate().Set("count", n+1)), nil
//	}
type NodeFunc func(ctx Context, s state.State) (Command, error)

// RouterFunc selects a route label for a conditional edge.
// The label is looked up in the routes map given to AddConditionalEdge.
// Routers must be deterministic and free of side effects so that replaying
// from a checkpoint takes the same path.
//
// Example:
//
//	func review(ctx stategraph.Context, s state.State) string {
//	    if state.ValueOr(s, "approved", false) {
//	        return "approved"
//	    }
//	    return "revise"
//	}
type RouterFunc func(ctx Context, s state.State) string

// Command is what a node returns: an update to merge and, optionally, the
// node to run next. A non-empty Goto overrides the node's outgoing edges,
// conditional or static.
type Command struct {
	Goto   string
	Update state.Update
}

// Continue returns a Command that merges u and follows the node's edges.
func Continue(u state.Update) Command {
	return Command{Update: u}
}

// Goto returns a Command that merges u and jumps to node.
func Goto(node string, u state.Update) Command {
	return Command{Goto: node, Update: u}
}
