package stategraph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randalmurphal/stategraph/pkg/stategraph/config"
	sgerrors "github.com/randalmurphal/stategraph/pkg/stategraph/errors"
	"github.com/randalmurphal/stategraph/pkg/stategraph/expr"
	"github.com/randalmurphal/stategraph/pkg/stategraph/registry"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// ErrInvalidDefinition indicates a declarative graph definition is malformed.
var ErrInvalidDefinition = errors.New("invalid graph definition")

// FromConfig builds a Graph from a declarative definition. Node actions and
// routers are referenced by name and resolved through the registries.
//
// Definition keys:
//
//	channels:            # optional, key: replace | append
//	  messages: append
//	entry: fetch         # shorthand for an edge from __start__
//	nodes:
//	  - name: fetch
//	    action: http_get # defaults to name
//	  - name: summarize
//	edges:
//	  - {from: fetch, to: summarize}
//	conditional_edges:
//	  - from: summarize
//	    router: approval
//	    routes: {ok: __end__, retry: fetch}
//	  - from: fetch          # condition routing, see package expr
//	    cases:
//	      - {when: "status >= 500", to: fetch}
//	    default: summarize
//
// All problems are reported together, joined, each wrapping
// ErrInvalidDefinition. The result still has to be compiled; structural
// checks happen there.
func FromConfig(cfg config.Config, actions *registry.Registry[NodeFunc], routers *registry.Registry[RouterFunc]) (*Graph, error) {
	var errs []error

	schema, err := schemaFromConfig(cfg.Sub("channels"))
	if err != nil {
		errs = append(errs, err)
	}
	g := NewGraph(schema)

	for i, node := range cfg.List("nodes") {
		name := node.String("name", "")
		if name == "" {
			errs = append(errs, fmt.Errorf("%w: nodes[%d] has no name", ErrInvalidDefinition, i))
			continue
		}
		fn, err := actions.Lookup(node.String("action", name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: node %s: action %w", ErrInvalidDefinition, name, err))
			continue
		}
		if err := build(func() { g.AddNode(name, fn) }); err != nil {
			errs = append(errs, err)
		}
	}

	if entry := cfg.String("entry", ""); entry != "" {
		g.SetEntry(entry)
	}

	for i, edge := range cfg.List("edges") {
		from, to := edge.String("from", ""), edge.String("to", "")
		if from == "" || to == "" {
			errs = append(errs, fmt.Errorf("%w: edges[%d] needs from and to", ErrInvalidDefinition, i))
			continue
		}
		g.AddEdge(from, to)
	}

	for i, edge := range cfg.List("conditional_edges") {
		from := edge.String("from", "")
		if from != "" && edge.Has("cases") {
			router, routes, err := caseRouter(from, edge)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			g.AddConditionalEdge(from, router, routes)
			continue
		}
		routes := edge.StringMap("routes")
		if from == "" || len(routes) == 0 {
			errs = append(errs, fmt.Errorf("%w: conditional_edges[%d] needs from and routes or cases", ErrInvalidDefinition, i))
			continue
		}
		router, err := routers.Lookup(edge.String("router", ""))
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: conditional edge from %s: router %w", ErrInvalidDefinition, from, err))
			continue
		}
		g.AddConditionalEdge(from, router, routes)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// CompileOptionsFromConfig maps definition keys to compile options:
// interrupt_before, interrupt_after (node lists), release_thread (bool) and
// max_steps (int). The checkpointer is not part of the definition; see
// checkpoint.FromConfig.
func CompileOptionsFromConfig(cfg config.Config) []CompileOption {
	var opts []CompileOption
	if nodes := cfg.StringSlice("interrupt_before", nil); len(nodes) > 0 {
		opts = append(opts, WithInterruptBefore(nodes...))
	}
	if nodes := cfg.StringSlice("interrupt_after", nil); len(nodes) > 0 {
		opts = append(opts, WithInterruptAfter(nodes...))
	}
	if cfg.Has("release_thread") {
		opts = append(opts, WithReleaseThread(cfg.Bool("release_thread", false)))
	}
	if n := cfg.Int("max_steps", 0); n > 0 {
		opts = append(opts, WithMaxSteps(n))
	}
	return opts
}

// RunOptionsFromConfig maps run settings to run options: max_iterations,
// metrics, tracing, and a retry block:
//
//	retry:
//	  max_attempts: 3
//	  initial_backoff: 500ms
//	  max_backoff: 10s
//	  backoff_factor: 2
//	  jitter: 0.1
//	  nodes: [fetch]   # empty means every node
//
// An invalid retry block yields an error wrapping ErrInvalidDefinition.
func RunOptionsFromConfig(cfg config.Config) ([]RunOption, error) {
	var opts []RunOption
	if n := cfg.Int("max_iterations", 0); n > 0 {
		opts = append(opts, WithMaxIterations(n))
	}
	if cfg.Bool("metrics", false) {
		opts = append(opts, WithMetrics(true))
	}
	if cfg.Bool("tracing", false) {
		opts = append(opts, WithTracing(true))
	}
	if cfg.Has("retry") {
		retry := cfg.Sub("retry")
		def := sgerrors.DefaultRetry
		policy := sgerrors.NewRetryConfig(
			sgerrors.WithMaxAttempts(retry.Int("max_attempts", def.MaxAttempts)),
			sgerrors.WithInitialBackoff(retry.Duration("initial_backoff", def.InitialBackoff)),
			sgerrors.WithMaxBackoff(retry.Duration("max_backoff", def.MaxBackoff)),
			sgerrors.WithBackoffFactor(retry.Float("backoff_factor", def.BackoffFactor)),
			sgerrors.WithJitter(retry.Float("jitter", def.Jitter)),
		)
		if err := policy.Validate(); err != nil {
			return nil, fmt.Errorf("%w: retry: %w", ErrInvalidDefinition, err)
		}
		opts = append(opts, WithNodeRetry(policy, retry.StringSlice("nodes", nil)...))
	}
	return opts, nil
}

// schemaFromConfig builds a schema from a key → reducer name map.
func schemaFromConfig(channels config.Config) (*state.Schema, error) {
	schema := state.NewSchema()
	var errs []error
	for _, key := range channels.Keys() {
		switch strings.ToLower(channels.String(key, "")) {
		case "replace":
			schema.AddChannel(key, state.ReplaceChannel())
		case "append":
			schema.AddChannel(key, state.AppendChannel())
		default:
			errs = append(errs, fmt.Errorf("%w: channel %s: unknown reducer %q",
				ErrInvalidDefinition, key, channels.String(key, "")))
		}
	}
	return schema, errors.Join(errs...)
}

// caseRouter compiles the cases of a conditional edge into a router. The
// first case whose condition matches wins; otherwise the default target is
// taken. Each target doubles as its route label.
func caseRouter(from string, edge config.Config) (RouterFunc, map[string]string, error) {
	type branch struct {
		cond *expr.Condition
		to   string
	}
	var (
		branches []branch
		errs     []error
	)
	routes := make(map[string]string)

	for i, c := range edge.List("cases") {
		when, to := c.String("when", ""), c.String("to", "")
		if when == "" || to == "" {
			errs = append(errs, fmt.Errorf("%w: conditional edge from %s: cases[%d] needs when and to",
				ErrInvalidDefinition, from, i))
			continue
		}
		cond, err := expr.Compile(when)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: conditional edge from %s: cases[%d]: %w",
				ErrInvalidDefinition, from, i, err))
			continue
		}
		branches = append(branches, branch{cond: cond, to: to})
		routes[to] = to
	}
	if len(branches) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("%w: conditional edge from %s has no cases", ErrInvalidDefinition, from))
	}
	if len(errs) > 0 {
		return nil, nil, errors.Join(errs...)
	}

	def := edge.String("default", "")
	if def != "" {
		routes[def] = def
	}

	router := func(_ Context, s state.State) string {
		for _, b := range branches {
			if b.cond.Match(s) {
				return b.to
			}
		}
		return def
	}
	return router, routes, nil
}

// build converts a builder panic into an ErrInvalidDefinition error.
func build(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidDefinition, r)
		}
	}()
	fn()
	return nil
}
