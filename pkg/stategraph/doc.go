/*
Package stategraph builds and runs resumable state graphs.

# Overview

A graph is a set of named nodes joined by edges. Every node reads the
current state and returns an update; the engine merges the update with the
schema's reducers, picks the next node and checkpoints the result. A run on
a thread can suspend before or after chosen nodes and be resumed later, on
the same process or another one, from its latest checkpoint or any earlier
one.

# Basic Usage

Declare how keys merge, add nodes and edges, then compile:

	schema := state.NewSchema().
	    AddChannel("messages", state.AppendChannel())

	func greet(ctx stategraph.Context, s state.State) (stategraph.Command, error) {
	    name := state.ValueOr(s, "name", "world")
	    return stategraph.Continue(state.NewUpdate().Set("messages", "hello "+name)), nil
	}

	compiled, err := stategraph.NewGraph(schema).
	    AddNode("greet", greet).
	    AddEdge("greet", stategraph.END).
	    SetEntry("greet").
	    Compile()
	if err != nil {
	    log.Fatal(err)
	}

	final, err := compiled.Invoke(ctx,
	    stategraph.ArgsMap(map[string]any{"name": "ada"}),
	    stategraph.RunConfig{ThreadID: "t-1"})

Compile reports every structural problem at once (missing entry, dangling
edges, unreachable nodes, nodes without a way out) joined into one error.

# Streaming

Stream is the pull-based form of Invoke. Each Next runs at most one node:

	s := compiled.Stream(ctx, stategraph.Resume(), cfg)
	defer s.Close()
	for s.Next() {
	    out := s.Output()
	    switch out.Kind {
	    case stategraph.OutputNode:
	        fmt.Println(out.Node, "->", out.Next)
	    case stategraph.OutputInterrupt:
	        fmt.Println("suspended at", out.Node, out.Reason)
	    }
	}
	if err := s.Err(); err != nil {
	    return err
	}

With RunConfig.StreamMode set to StreamUpdates, node outputs carry only
the keys the node wrote.

# Routing

A node leaves through its static edge, its conditional edge, or the target
named by Command.Goto, which takes precedence over both:

	graph.AddConditionalEdge("review", func(ctx stategraph.Context, s state.State) string {
	    if state.ValueOr(s, "approved", false) {
	        return "ok"
	    }
	    return "revise"
	}, map[string]string{"ok": stategraph.END, "revise": "draft"})

Loops are bounded by WithMaxSteps at compile time (default 1000) or
WithMaxIterations per run.

# Interrupts and Resume

	compiled, _ := graph.Compile(
	    stategraph.WithCheckpointer(checkpoint.NewMemoryStore()),
	    stategraph.WithInterruptBefore("publish"))

	cfg := stategraph.RunConfig{ThreadID: "doc-42"}
	compiled.Invoke(ctx, stategraph.ArgsMap(args), cfg) // stops before publish

	cfg, _ = compiled.UpdateState(ctx, cfg, state.NewUpdate().Set("approved", true), "")
	final, err := compiled.Invoke(ctx, stategraph.Resume(), cfg)

A resumed run never repeats the interrupt that suspended it. GetStateHistory
lists every checkpoint of a thread; passing a snapshot's Config to a resume
replays from that point on a new branch.

# Subgraphs

AddSubgraph embeds a compiled graph as a node. When the inner graph
suspends, the outer run suspends too with an InterruptSubgraph output whose
Subgraph field names the path and the inner node. Resuming the outer
thread resumes the inner one.

# Observability

	final, err := compiled.Invoke(ctx, input, cfg,
	    stategraph.WithObservabilityLogger(logger),
	    stategraph.WithMetrics(true),
	    stategraph.WithTracing(true))

Logs carry thread_id, node_id, attempt and duration_ms. OpenTelemetry
metrics include stategraph.node.executions, stategraph.node.latency_ms,
stategraph.checkpoint.state_keys and stategraph.graph.interrupts. Tracing
produces a stategraph.run span with one child per node; retries,
checkpoint writes and interrupts are recorded as span events.

# Error Handling

	var nodeErr *stategraph.NodeError
	if errors.As(err, &nodeErr) {
	    log.Printf("node %s failed after %d attempts: %v", nodeErr.NodeID, nodeErr.Attempts, nodeErr.Err)
	}

Panics in nodes and routers are recovered as *PanicError. Transient node
errors can be retried with WithNodeRetry.

# Thread Safety

  - Graph is NOT safe for concurrent use during construction
  - CompiledGraph IS safe for concurrent use (immutable)
  - Stream is NOT safe for concurrent use
  - checkpoint.Store implementations are safe for concurrent use

Two streams writing the same thread at the same time interleave their
checkpoints; callers serialize runs per thread.

# Subpackages

  - state: State values, updates and reducer schemas
  - checkpoint: Checkpoint storage (memory, SQLite)
  - config: Typed access to YAML and JSON configuration
  - registry: Named node and router functions for FromConfig
  - expr: Route conditions for declarative conditional edges
  - errors: Error categories and retry with backoff
  - observability: Logging, metrics, and tracing helpers
*/
package stategraph
