package stategraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
)

// defaultMaxSteps bounds node executions per run when no limit is configured.
const defaultMaxSteps = 1000

// compileConfig is the run-independent configuration captured at compile time.
type compileConfig struct {
	checkpointer    checkpoint.Store
	interruptBefore map[string]bool
	interruptAfter  map[string]bool
	releaseThread   bool
	maxSteps        int
}

// CompileOption configures a compiled graph.
type CompileOption func(*compileConfig)

// WithCheckpointer sets the store that receives a checkpoint after every
// step. Without one, runs cannot be resumed or inspected.
func WithCheckpointer(store checkpoint.Store) CompileOption {
	return func(c *compileConfig) {
		c.checkpointer = store
	}
}

// WithInterruptBefore suspends a run just before any of the named nodes
// executes. Resuming runs the node.
func WithInterruptBefore(nodes ...string) CompileOption {
	return func(c *compileConfig) {
		for _, n := range nodes {
			c.interruptBefore[n] = true
		}
	}
}

// WithInterruptAfter suspends a run right after any of the named nodes
// completes and its checkpoint is written.
func WithInterruptAfter(nodes ...string) CompileOption {
	return func(c *compileConfig) {
		for _, n := range nodes {
			c.interruptAfter[n] = true
		}
	}
}

// WithReleaseThread deletes a thread's checkpoints once a run reaches END,
// along with the threads of subgraphs added with AddSubgraph. Released
// threads cannot be resumed or inspected.
func WithReleaseThread(release bool) CompileOption {
	return func(c *compileConfig) {
		c.releaseThread = release
	}
}

// WithMaxSteps bounds the number of node executions in one run.
// Default: 1000. Exceeding it fails the run with a MaxIterationsError.
func WithMaxSteps(n int) CompileOption {
	return func(c *compileConfig) {
		if n > 0 {
			c.maxSteps = n
		}
	}
}

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together
// and each wraps one of the structural sentinels (ErrNoEntryPoint,
// ErrNodeNotFound, ErrInvalidEdge, ErrConflictingEdges, ErrNoOutgoingEdge,
// ErrUnreachableNode).
//
// Compile never runs a node. Route labels a router might return are not
// known statically; an unmapped label fails at run time with ErrUnknownRoute.
func (g *Graph) Compile(opts ...CompileOption) (*CompiledGraph, error) {
	cfg := compileConfig{
		interruptBefore: make(map[string]bool),
		interruptAfter:  make(map[string]bool),
		maxSteps:        defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if len(g.edges[START]) == 0 && len(g.conditionalEdges[START]) == 0 {
		errs = append(errs, ErrNoEntryPoint)
	}

	errs = append(errs, g.validateEdges()...)

	// Every node needs exactly one way out
	for _, id := range sortedKeys(g.nodes) {
		if len(g.edges[id]) == 0 && len(g.conditionalEdges[id]) == 0 {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, id))
		}
	}

	reachable := g.findReachableNodes()
	for _, id := range sortedKeys(g.nodes) {
		if !reachable[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableNode, id))
		}
	}

	for _, set := range []map[string]bool{cfg.interruptBefore, cfg.interruptAfter} {
		for _, id := range sortedKeys(set) {
			if _, exists := g.nodes[id]; !exists {
				errs = append(errs, fmt.Errorf("%w: interrupt node '%s' does not exist", ErrNodeNotFound, id))
			}
		}
	}

	// A suspended run can only continue from a checkpoint
	if cfg.checkpointer == nil && g.suspends(cfg) {
		errs = append(errs, fmt.Errorf("%w: graph has interrupts or suspending subgraphs", ErrCheckpointerRequired))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.buildCompiledGraph(cfg), nil
}

// suspends reports whether a run of the graph can stop before END.
func (g *Graph) suspends(cfg compileConfig) bool {
	if len(cfg.interruptBefore) > 0 || len(cfg.interruptAfter) > 0 {
		return true
	}
	for _, inner := range g.subgraphs {
		if inner.suspends {
			return true
		}
	}
	return false
}

// validateEdges checks edge endpoints and that no node has more than one
// outgoing edge.
func (g *Graph) validateEdges() []error {
	var errs []error

	checkSource := func(from, kind string) {
		switch {
		case from == END:
			errs = append(errs, fmt.Errorf("%w: %s edge leaves END", ErrInvalidEdge, kind))
		case from == START:
		default:
			if _, exists := g.nodes[from]; !exists {
				errs = append(errs, fmt.Errorf("%w: %s edge source '%s' does not exist", ErrNodeNotFound, kind, from))
			}
		}
	}
	checkTarget := func(from, to, kind string) {
		switch {
		case to == START:
			errs = append(errs, fmt.Errorf("%w: %s edge from '%s' enters START", ErrInvalidEdge, kind, from))
		case to == END:
		default:
			if _, exists := g.nodes[to]; !exists {
				errs = append(errs, fmt.Errorf("%w: %s edge target '%s' does not exist", ErrNodeNotFound, kind, to))
			}
		}
	}

	for _, from := range sortedKeys(g.edges) {
		checkSource(from, "edge")
		for _, to := range g.edges[from] {
			checkTarget(from, to, "edge")
		}
	}

	for _, from := range sortedKeys(g.conditionalEdges) {
		checkSource(from, "conditional")
		for _, ce := range g.conditionalEdges[from] {
			for _, label := range sortedKeys(ce.routes) {
				checkTarget(from, ce.routes[label], "conditional")
			}
		}
	}

	// The step loop is sequential, so a node cannot fan out
	sources := make(map[string]bool)
	for from := range g.edges {
		sources[from] = true
	}
	for from := range g.conditionalEdges {
		sources[from] = true
	}
	for _, from := range sortedKeys(sources) {
		if n := len(g.edges[from]) + len(g.conditionalEdges[from]); n > 1 {
			errs = append(errs, fmt.Errorf("%w: '%s' has %d outgoing edges", ErrConflictingEdges, from, n))
		}
	}

	return errs
}

// findReachableNodes returns the set of nodes reachable from START.
// Conditional edges reach every target in their route map.
func (g *Graph) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)
	queue := []string{START}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		var targets []string
		targets = append(targets, g.edges[current]...)
		for _, ce := range g.conditionalEdges[current] {
			for _, to := range ce.routes {
				targets = append(targets, to)
			}
		}

		for _, to := range targets {
			if to == END || to == START || reachable[to] {
				continue
			}
			if _, exists := g.nodes[to]; !exists {
				continue
			}
			reachable[to] = true
			queue = append(queue, to)
		}
	}

	return reachable
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
// Called only after validation, so every source has exactly one edge.
func (g *Graph) buildCompiledGraph(cfg compileConfig) *CompiledGraph {
	nodes := make(map[string]NodeFunc, len(g.nodes))
	for id, fn := range g.nodes {
		nodes[id] = fn
	}

	edges := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = targets[0]
	}

	conditional := make(map[string]conditionalEdge, len(g.conditionalEdges))
	for from, ces := range g.conditionalEdges {
		conditional[from] = ces[0]
	}

	subgraphs := make(map[string]*CompiledGraph, len(g.subgraphs))
	for id, inner := range g.subgraphs {
		subgraphs[id] = inner
	}

	cg := &CompiledGraph{
		nodes:        nodes,
		edges:        edges,
		conditional:  conditional,
		subgraphs:    subgraphs,
		schema:       g.schema.Clone(),
		config:       cfg,
		suspends:     g.suspends(cfg),
		successors:   make(map[string][]string),
		predecessors: make(map[string][]string),
	}

	// Pre-compute adjacency for introspection
	for _, from := range append(sortedKeys(nodes), START) {
		for _, to := range cg.targetsOf(from) {
			cg.successors[from] = append(cg.successors[from], to)
			if to != END {
				cg.predecessors[to] = append(cg.predecessors[to], from)
			}
		}
	}

	return cg
}

// sortedKeys returns the keys of m in sorted order so validation errors are
// reported deterministically.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
