package stategraph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

func TestAddNode_Panics(t *testing.T) {
	noop := setNode("k", 1)

	tests := []struct {
		name string
		id   string
		fn   NodeFunc
	}{
		{"empty id", "", noop},
		{"reserved END", END, noop},
		{"reserved end lowercase", "end", noop},
		{"reserved START", START, noop},
		{"reserved Start mixed case", "Start", noop},
		{"whitespace", "my node", noop},
		{"tab", "my\tnode", noop},
		{"nil func", "node", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				NewGraph(nil).AddNode(tt.id, tt.fn)
			})
		})
	}
}

func TestAddNode_DuplicatePanics(t *testing.T) {
	g := NewGraph(nil).AddNode("a", setNode("k", 1))
	assert.PanicsWithValue(t, "stategraph: duplicate node ID: a", func() {
		g.AddNode("a", setNode("k", 2))
	})
}

func TestAddConditionalEdge_Panics(t *testing.T) {
	router := func(_ Context, _ state.State) string { return "x" }

	assert.Panics(t, func() {
		NewGraph(nil).AddConditionalEdge("a", nil, map[string]string{"x": END})
	}, "nil router")
	assert.Panics(t, func() {
		NewGraph(nil).AddConditionalEdge("a", router, nil)
	}, "no routes")
}

func TestAddConditionalEdge_CopiesRoutes(t *testing.T) {
	routes := map[string]string{"done": END}
	g := NewGraph(nil).
		AddNode("a", setNode("k", 1)).
		SetEntry("a").
		AddConditionalEdge("a", func(_ Context, _ state.State) string { return "done" }, routes)

	routes["done"] = "missing"

	_, err := g.Compile()
	assert.NoError(t, err, "later changes to the caller's map must not leak into the graph")
}

func TestAddSubgraph_NilPanics(t *testing.T) {
	assert.PanicsWithValue(t, "stategraph: subgraph cannot be nil", func() {
		NewGraph(nil).AddSubgraph("sub", nil)
	})
}

func TestGraph_Chaining(t *testing.T) {
	g := NewGraph(nil).
		AddNode("a", setNode("x", 1)).
		AddNode("b", setNode("y", 2)).
		AddEdge("a", "b").
		AddEdge("b", END).
		SetEntry("a")

	compiled, err := g.Compile()
	assert.NoError(t, err)
	assert.Equal(t, "a", compiled.EntryPoint())
	assert.Equal(t, []string{"a", "b"}, compiled.NodeIDs())
}
