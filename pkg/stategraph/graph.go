package stategraph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// conditionalEdge is a router plus the label → node map it selects from.
type conditionalEdge struct {
	router RouterFunc
	routes map[string]string
}

// Graph is a mutable builder for creating execution graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	schema := state.NewSchema().AddChannel("messages", state.AppendChannel())
//
//	graph := stategraph.NewGraph(schema).
//	    AddNode("fetch", fetchNode).
//	    AddNode("process", processNode).
//	    AddEdge("fetch", "process").
//	    AddEdge("process", stategraph.END).
//	    SetEntry("fetch")
//
//	compiled, err := graph.Compile(stategraph.WithCheckpointer(store))
type Graph struct {
	mu               sync.RWMutex
	schema           *state.Schema
	nodes            map[string]NodeFunc
	edges            map[string][]string
	conditionalEdges map[string][]conditionalEdge
	subgraphs        map[string]*CompiledGraph
}

// NewGraph creates a new graph builder. A nil schema treats every key as a
// replace channel.
func NewGraph(schema *state.Schema) *Graph {
	return &Graph{
		schema:           schema,
		nodes:            make(map[string]NodeFunc),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string][]conditionalEdge),
		subgraphs:        make(map[string]*CompiledGraph),
	}
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is one of the reserved START or END identifiers (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	if id == "" {
		panic("stategraph: node ID cannot be empty")
	}

	switch strings.ToLower(id) {
	case "end", END, "start", START:
		panic(fmt.Sprintf("stategraph: node ID cannot be reserved word %q", id))
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("stategraph: node ID cannot contain whitespace")
	}

	if fn == nil {
		panic("stategraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("stategraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

// AddSubgraph adds inner as the node id. See SubgraphNode.
func (g *Graph) AddSubgraph(id string, inner *CompiledGraph) *Graph {
	if inner == nil {
		panic("stategraph: subgraph cannot be nil")
	}
	g.AddNode(id, SubgraphNode(id, inner))

	g.mu.Lock()
	defer g.mu.Unlock()
	g.subgraphs[id] = inner
	return g
}

// AddEdge adds an unconditional edge from one node to another.
// from may be START and to may be END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// AddConditionalEdge adds an edge whose target is chosen at run time:
// router returns a label and routes maps the label to a node ID or END.
// Returns the graph for method chaining.
//
// Compile treats every route target as reachable. A label missing from
// routes fails the run with ErrUnknownRoute.
//
// Panics if router is nil or routes is empty.
func (g *Graph) AddConditionalEdge(from string, router RouterFunc, routes map[string]string) *Graph {
	if router == nil {
		panic("stategraph: router function cannot be nil")
	}
	if len(routes) == 0 {
		panic("stategraph: conditional edge needs at least one route")
	}

	copied := make(map[string]string, len(routes))
	for label, target := range routes {
		copied[label] = target
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.conditionalEdges[from] = append(g.conditionalEdges[from], conditionalEdge{router: router, routes: copied})
	return g
}

// SetEntry designates the entry point node. It is shorthand for
// AddEdge(START, id).
// Returns the graph for method chaining.
func (g *Graph) SetEntry(id string) *Graph {
	return g.AddEdge(START, id)
}

// SetConditionalEntry routes from START at run time, based on the initial
// state. It is shorthand for AddConditionalEdge(START, router, routes).
func (g *Graph) SetConditionalEntry(router RouterFunc, routes map[string]string) *Graph {
	return g.AddConditionalEdge(START, router, routes)
}
