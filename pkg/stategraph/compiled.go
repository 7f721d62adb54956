package stategraph

import (
	"sort"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is safe for concurrent use by runs on distinct threads.
// Concurrent runs of the same thread are not supported; callers must
// serialize them.
//
// Use the introspection methods (NodeIDs, Successors, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph struct {
	nodes       map[string]NodeFunc
	edges       map[string]string
	conditional map[string]conditionalEdge
	subgraphs   map[string]*CompiledGraph
	schema      *state.Schema
	config      compileConfig
	suspends    bool

	// Pre-computed for introspection
	successors   map[string][]string
	predecessors map[string][]string
}

// EntryPoint returns the node START leads to, or "" when the entry is
// chosen by a conditional edge.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.edges[START]
}

// NodeIDs returns all node identifiers in sorted order.
func (cg *CompiledGraph) NodeIDs() []string {
	return sortedKeys(cg.nodes)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successors returns every node (or END) the given node can lead to through
// its static or conditional edge, sorted. Returns nil for END or unknown
// nodes. Command.Goto targets are decided at run time and not included.
func (cg *CompiledGraph) Successors(id string) []string {
	return cg.successors[id]
}

// Predecessors returns the nodes (or START) with an edge to the given node.
func (cg *CompiledGraph) Predecessors(id string) []string {
	return cg.predecessors[id]
}

// IsConditional returns true if the node has a conditional edge.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, ok := cg.conditional[id]
	return ok
}

// Schema returns the graph's schema. It must not be modified.
func (cg *CompiledGraph) Schema() *state.Schema {
	return cg.schema
}

// Checkpointer returns the configured checkpoint store, or nil.
func (cg *CompiledGraph) Checkpointer() checkpoint.Store {
	return cg.config.checkpointer
}

// InterruptBefore returns the nodes that suspend a run before executing.
func (cg *CompiledGraph) InterruptBefore() []string {
	return sortedKeys(cg.config.interruptBefore)
}

// InterruptAfter returns the nodes that suspend a run after executing.
func (cg *CompiledGraph) InterruptAfter() []string {
	return sortedKeys(cg.config.interruptAfter)
}

// getNode returns the node function for the given ID.
func (cg *CompiledGraph) getNode(id string) (NodeFunc, bool) {
	fn, exists := cg.nodes[id]
	return fn, exists
}

// targetsOf lists the distinct static and route targets of a node, sorted.
func (cg *CompiledGraph) targetsOf(id string) []string {
	seen := make(map[string]bool)
	if to, ok := cg.edges[id]; ok {
		seen[to] = true
	}
	if ce, ok := cg.conditional[id]; ok {
		for _, to := range ce.routes {
			seen[to] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for to := range seen {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}
