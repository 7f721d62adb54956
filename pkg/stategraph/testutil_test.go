package stategraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// traceSchema accumulates visited nodes under "trace".
func traceSchema() *state.Schema {
	return state.NewSchema().AddChannel("trace", state.AppendChannel())
}

// callCounter records how many times each node ran.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) hit(node string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[node]++
}

func (c *callCounter) count(node string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[node]
}

// traceNode appends its name to "trace".
func traceNode(name string, calls *callCounter) NodeFunc {
	return func(_ Context, _ state.State) (Command, error) {
		if calls != nil {
			calls.hit(name)
		}
		return Continue(state.NewUpdate().Set("trace", name)), nil
	}
}

// setNode sets key to value.
func setNode(key string, value any) NodeFunc {
	return func(_ Context, _ state.State) (Command, error) {
		return Continue(state.NewUpdate().Set(key, value)), nil
	}
}

// incrementNode adds one to the int under "n".
func incrementNode(_ Context, s state.State) (Command, error) {
	return Continue(state.NewUpdate().Set("n", state.ValueOr(s, "n", 0)+1)), nil
}

// failingNode returns err.
func failingNode(err error) NodeFunc {
	return func(_ Context, _ state.State) (Command, error) {
		return Command{}, err
	}
}

// panicNode panics with value.
func panicNode(value any) NodeFunc {
	return func(_ Context, _ state.State) (Command, error) {
		panic(value)
	}
}

// linearGraph builds START → names[0] → ... → END with trace nodes.
func linearGraph(calls *callCounter, names ...string) *Graph {
	g := NewGraph(traceSchema())
	prev := START
	for _, name := range names {
		g.AddNode(name, traceNode(name, calls)).AddEdge(prev, name)
		prev = name
	}
	return g.AddEdge(prev, END)
}

func mustCompile(t *testing.T, g *Graph, opts ...CompileOption) *CompiledGraph {
	t.Helper()
	compiled, err := g.Compile(opts...)
	require.NoError(t, err)
	return compiled
}

func newStore(t *testing.T) checkpoint.Store {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	return store
}

// traceOf returns the trace of s as strings.
func traceOf(s state.State) []string {
	raw, _ := state.Value[[]any](s, "trace")
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// nodesOf lists the Node field of every output.
func nodesOf(outs []Output) []string {
	nodes := make([]string, 0, len(outs))
	for _, o := range outs {
		nodes = append(nodes, o.Node)
	}
	return nodes
}

func lastOutput(t *testing.T, outs []Output) Output {
	t.Helper()
	require.NotEmpty(t, outs)
	return outs[len(outs)-1]
}

// testCtx creates a simple test context.
func testCtx() context.Context {
	return context.Background()
}

var errBoom = errors.New("boom")

// testLogHandler captures log records for testing.
type testLogHandler struct {
	mu    *sync.Mutex
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{
		mu:    &sync.Mutex{},
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, a := range h.attrs {
		data[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &testLogHandler{
		mu:    h.mu,
		buf:   h.buf,
		level: h.level,
		attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...),
	}
}

func (h *testLogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testLogHandler) getRecords() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var records []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			records = append(records, m)
		}
	}
	return records
}

// recordsWithMsg filters records by message.
func (h *testLogHandler) recordsWithMsg(msg string) []map[string]any {
	var out []map[string]any
	for _, r := range h.getRecords() {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

func slogFor(h *testLogHandler) *slog.Logger {
	return slog.New(h)
}
