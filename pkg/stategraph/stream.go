package stategraph

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/stategraph/pkg/stategraph/checkpoint"
	sgerrors "github.com/randalmurphal/stategraph/pkg/stategraph/errors"
	"github.com/randalmurphal/stategraph/pkg/stategraph/observability"
	"github.com/randalmurphal/stategraph/pkg/stategraph/state"
)

// Stream is a pull-based run of a compiled graph. Each call to Next runs at
// most one node; nothing executes until the caller asks for it, so dropping
// a stream stops the run with no work beyond the outputs already read.
//
// A stream is finite and cannot be restarted. It ends with an OutputEnd
// output, an OutputInterrupt output, or an error reported by Err.
//
// Example:
//
//	s := compiled.Stream(ctx, stategraph.ArgsMap(map[string]any{"query": q}), cfg)
//	defer s.Close()
//	for s.Next() {
//	    out := s.Output()
//	    fmt.Println(out.Kind, out.Node, out.State)
//	}
//	if err := s.Err(); err != nil {
//	    return err
//	}
//
// Stream is not safe for concurrent use.
type Stream struct {
	cg    *CompiledGraph
	ctx   context.Context
	input Input
	cfg   RunConfig
	opts  runConfig
	ec    *executionContext

	started bool
	done    bool
	out     Output
	err     error

	// Execution position
	current     string
	st          state.State
	lastID      string
	lastCreated string
	steps       int
	maxSteps    int
	resumed     bool
	skipBefore  bool
	pending     *Output
	lastNode    string

	// Observability
	start   time.Time
	runSpan trace.Span
}

// Stream starts a run. Input is Args for a fresh run or Resume to continue
// the thread named by cfg from its latest checkpoint (or cfg.CheckpointID).
//
// The returned stream has not done any work yet.
func (cg *CompiledGraph) Stream(ctx context.Context, input Input, cfg RunConfig, opts ...RunOption) *Stream {
	rc := defaultRunConfig()
	for _, opt := range opts {
		opt(&rc)
	}

	maxSteps := cg.config.maxSteps
	if rc.maxIterations > 0 {
		maxSteps = rc.maxIterations
	}

	cfg.ThreadID = cfg.thread()

	s := &Stream{
		cg:       cg,
		ctx:      ctx,
		input:    input,
		cfg:      cfg,
		opts:     rc,
		maxSteps: maxSteps,
		resumed:  input.resume,
	}
	if ctx == nil {
		s.done = true
		s.err = ErrNilContext
	}
	s.ec = &executionContext{
		Context:      ctx,
		logger:       rc.logger,
		checkpointer: cg.config.checkpointer,
		runConfig:    cfg,
		attempt:      1,
		runOpts:      opts,
	}
	return s
}

// Invoke runs the graph to completion and returns the final state.
//
// A run that suspends returns the state at the suspension point and a nil
// error; use Stream to tell suspension from completion.
func (cg *CompiledGraph) Invoke(ctx context.Context, input Input, cfg RunConfig, opts ...RunOption) (state.State, error) {
	s := cg.Stream(ctx, input, cfg, opts...)
	defer s.Close()

	var last state.State
	for s.Next() {
		last = s.Output().State
	}
	return last, s.Err()
}

// Next runs the graph until it can produce the next output. It returns false
// when the stream is exhausted or failed; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}

	if !s.started {
		s.started = true
		if err := s.init(); err != nil {
			s.fail(err)
			return false
		}
	}

	if s.pending != nil {
		out := *s.pending
		s.pending = nil
		return s.terminate(out)
	}

	return s.step()
}

// Output returns the output produced by the last successful call to Next.
func (s *Stream) Output() Output {
	return s.out
}

// Err returns the error that ended the stream, if any. Suspension is not an
// error.
func (s *Stream) Err() error {
	return s.err
}

// Close stops the stream. Later calls to Next return false. Closing does
// not touch checkpoints already written.
func (s *Stream) Close() {
	if s.done {
		return
	}
	s.done = true
	s.endRunSpan(observability.OutcomeClosed, nil)
}

// Collect drains the stream and returns every output.
func (s *Stream) Collect() ([]Output, error) {
	defer s.Close()

	var outs []Output
	for s.Next() {
		outs = append(outs, s.Output())
	}
	return outs, s.Err()
}

// init prepares the first step from fresh arguments or a checkpoint.
func (s *Stream) init() error {
	s.start = time.Now()
	observability.LogRunStart(s.opts.logger, s.cfg.ThreadID, s.resumed)
	s.ctx, s.runSpan = s.opts.spans.StartRunSpan(s.ctx, observability.RunInfo{
		ThreadID:     s.cfg.ThreadID,
		CheckpointID: s.cfg.CheckpointID,
		Resumed:      s.resumed,
		Path:         s.cfg.NodePath,
	})
	s.ec.Context = s.ctx

	if s.input.resume {
		return s.initResume()
	}
	return s.initFresh()
}

// initFresh merges the arguments, routes out of START and writes the
// initial checkpoint.
func (s *Stream) initFresh() error {
	s.st = s.cg.schema.Apply(state.New(), s.input.args)
	s.lastCreated = START

	first, err := s.route(START, Command{}, s.st)
	if err != nil {
		return err
	}

	if store := s.cg.config.checkpointer; store != nil {
		// A new run on an existing thread continues its history
		latest, err := store.Latest(s.ctx, s.cfg.ThreadID)
		switch {
		case err == nil:
			s.lastID = latest.ID
		case !errors.Is(err, checkpoint.ErrNotFound):
			return &CheckpointError{NodeID: START, Op: "load", Err: err}
		}
	}

	cfg, err := s.save(START, s.st, first)
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.enter(first)
	return nil
}

// initResume loads the checkpoint to continue from.
func (s *Stream) initResume() error {
	cp, err := s.cg.loadCheckpoint(s.ctx, s.cfg)
	if err != nil {
		return err
	}

	if cp.NextNode != END && !s.cg.HasNode(cp.NextNode) {
		return fmt.Errorf("%w: %s", ErrInvalidResumeNode, cp.NextNode)
	}

	s.st = cp.State
	s.lastID = cp.ID
	s.lastCreated = cp.CreatedNode
	s.lastNode = cp.CreatedNode
	s.skipBefore = true
	s.cfg = s.cfg.withCheckpoint(cp.ID)
	s.enter(cp.NextNode)
	return nil
}

// enter positions the stream at node, queueing the END output if the run
// is already complete.
func (s *Stream) enter(node string) {
	s.current = node
	if node == END {
		s.pending = &Output{Kind: OutputEnd, Node: END, State: s.st, Config: s.cfg}
	}
}

// step executes the current node and produces its output.
func (s *Stream) step() bool {
	node := s.current

	if err := s.ctx.Err(); err != nil {
		s.fail(&CancellationError{NodeID: node, State: s.st, Cause: err})
		return false
	}

	if s.steps >= s.maxSteps {
		s.fail(&MaxIterationsError{Max: s.maxSteps, LastNodeID: node, State: s.st})
		return false
	}

	if s.cg.config.interruptBefore[node] && !s.skipBefore {
		return s.terminate(Output{
			Kind:   OutputInterrupt,
			Node:   node,
			Next:   node,
			State:  s.st,
			Reason: InterruptBefore,
			Config: s.cfg,
		})
	}
	s.skipBefore = false
	s.steps++
	s.lastNode = node

	elapsed := observability.TimedOperation()
	cmd, err := s.runNode(node)
	if err != nil {
		if sig, ok := AsSubgraphInterrupt(err); ok {
			return s.suspendSubgraph(node, sig)
		}
		s.fail(err)
		return false
	}

	merged := s.cg.schema.Apply(s.st, cmd.Update)

	next, err := s.route(node, cmd, merged)
	if err != nil {
		s.fail(err)
		return false
	}
	observability.LogNodeComplete(s.opts.logger, node, next, elapsed())

	cfg, err := s.save(node, merged, next)
	if err != nil {
		s.fail(err)
		return false
	}
	s.cfg = cfg
	s.st = merged

	out := Output{
		Kind:   OutputNode,
		Node:   node,
		Next:   next,
		State:  merged,
		Config: cfg,
	}
	if s.cfg.StreamMode == StreamUpdates {
		out.State = merged.Select(cmd.Update.Keys()...)
	}
	s.out = out

	switch {
	case s.cg.config.interruptAfter[node]:
		s.current = next
		s.pending = &Output{
			Kind:   OutputInterrupt,
			Node:   node,
			Next:   next,
			State:  merged,
			Reason: InterruptAfter,
			Config: cfg,
		}
	default:
		s.enter(next)
	}
	return true
}

// runNode executes a node with retries, logging, metrics and tracing.
func (s *Stream) runNode(node string) (Command, error) {
	fn, exists := s.cg.getNode(node)
	if !exists {
		// Compilation guarantees this for edges; Goto and resume are checked too
		return Command{}, &NodeError{NodeID: node, Op: "lookup", Err: fmt.Errorf("%w: %s", ErrNodeNotFound, node)}
	}

	observability.LogNodeStart(s.opts.logger, node)
	nodeCtx, span := s.opts.spans.StartNodeSpan(s.ctx, node)
	start := time.Now()

	policy := s.opts.retryFor(node)
	userRetryable := policy.RetryableFunc
	policy.RetryableFunc = func(err error) bool {
		if _, ok := AsSubgraphInterrupt(err); ok {
			return false
		}
		var panicErr *PanicError
		if errors.As(err, &panicErr) {
			return false
		}
		if userRetryable != nil {
			return userRetryable(err)
		}
		return sgerrors.IsRetryable(err)
	}
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		observability.LogNodeRetry(s.opts.logger, node, attempt, delay, err)
		s.opts.spans.AddRetryEvent(nodeCtx, attempt, delay, err)
		if userOnRetry != nil {
			userOnRetry(attempt, delay, err)
		}
	}

	result := sgerrors.Do(nodeCtx, policy, func(ctx context.Context, attempt int) (Command, error) {
		return s.executeNode(ctx, node, fn, attempt)
	})

	duration := time.Since(start)
	err := s.wrapNodeError(node, result)

	if _, ok := AsSubgraphInterrupt(err); ok {
		s.opts.metrics.RecordNodeExecution(nodeCtx, node, duration, nil)
		s.opts.spans.EndSpan(span, nil)
		return Command{}, err
	}

	s.opts.metrics.RecordNodeExecution(nodeCtx, node, duration, err)
	s.opts.spans.EndSpan(span, err)

	if err != nil {
		observability.LogNodeError(s.opts.logger, node, err)
		return Command{}, err
	}
	return result.Value, nil
}

// wrapNodeError gives a failed attempt its node context.
func (s *Stream) wrapNodeError(node string, result sgerrors.RetryResult[Command]) error {
	err := result.Err
	if err == nil {
		return nil
	}
	if _, ok := AsSubgraphInterrupt(err); ok {
		return err
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return err
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return &CancellationError{NodeID: node, State: s.st, Cause: ctxErr, WasExecuting: true}
	}
	return &NodeError{NodeID: node, Op: "execute", Attempts: result.Attempts, Err: err}
}

// executeNode runs one attempt of a node with panic recovery.
func (s *Stream) executeNode(ctx context.Context, node string, fn NodeFunc, attempt int) (cmd Command, err error) {
	nodeCtx := s.ec.withNode(ctx, node, attempt)

	defer func() {
		if r := recover(); r != nil {
			cmd = Command{}
			err = &PanicError{
				NodeID: node,
				Value:  r,
				Stack:  string(debug.Stack()),
			}
		}
	}()

	return fn(nodeCtx, s.st)
}

// route determines the node after from for this run.
func (s *Stream) route(from string, cmd Command, st state.State) (string, error) {
	return s.cg.nextNode(s.ctx, s.ec, from, cmd, st)
}

// nextNode determines the node after from.
// Precedence: Command.Goto, then the conditional edge, then the static edge.
func (cg *CompiledGraph) nextNode(ctx context.Context, ec *executionContext, from string, cmd Command, st state.State) (next string, err error) {
	if cmd.Goto != "" {
		if cmd.Goto != END && !cg.HasNode(cmd.Goto) {
			return "", &RouterError{FromNode: from, Returned: cmd.Goto, Err: ErrGotoTargetNotFound}
		}
		return cmd.Goto, nil
	}

	if ce, ok := cg.conditional[from]; ok {
		routerCtx := ec.withNode(ctx, from, 1)

		var label string
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = &PanicError{NodeID: from, Value: r, Stack: string(debug.Stack())}
				}
			}()
			label = ce.router(routerCtx, st)
		}()
		if err != nil {
			return "", err
		}

		if label == "" {
			return "", &RouterError{FromNode: from, Returned: label, Err: ErrInvalidRouterResult}
		}
		target, ok := ce.routes[label]
		if !ok {
			return "", &RouterError{FromNode: from, Returned: label, Err: ErrUnknownRoute}
		}
		return target, nil
	}

	if to, ok := cg.edges[from]; ok {
		return to, nil
	}

	// Compilation guarantees every node has an edge
	return "", &RouterError{FromNode: from, Err: ErrNoOutgoingEdge}
}

// save writes a checkpoint for the step that just ran at node and returns
// a run config pointing at it. Without a store it is a no-op.
func (s *Stream) save(node string, st state.State, next string) (RunConfig, error) {
	return s.saveAs(node, node, st, next)
}

// saveAs is save with an explicit CreatedNode.
func (s *Stream) saveAs(node, createdNode string, st state.State, next string) (RunConfig, error) {
	store := s.cg.config.checkpointer
	if store == nil {
		return s.cfg, nil
	}

	cp := checkpoint.New(s.cfg.ThreadID, st, createdNode, next).WithParent(s.lastID)
	if err := store.Put(s.ctx, cp); err != nil {
		observability.LogCheckpointError(s.opts.logger, node, "save", err)
		return s.cfg, &CheckpointError{NodeID: node, Op: "save", Err: err}
	}

	observability.LogCheckpoint(s.opts.logger, node, cp.ID, next)
	s.opts.spans.AddCheckpointEvent(s.ctx, cp.ID, createdNode, next)
	s.opts.metrics.RecordCheckpoint(s.ctx, node, st.Len())

	s.lastID = cp.ID
	s.lastCreated = createdNode
	return s.cfg.withCheckpoint(cp.ID), nil
}

// suspendSubgraph records a resumable checkpoint for a subgraph node whose
// inner run suspended, then ends the stream with the signal.
func (s *Stream) suspendSubgraph(node string, sig *SubgraphInterrupt) bool {
	merged := s.st
	for _, k := range sig.State.Keys() {
		v, _ := sig.State.Get(k)
		merged = merged.With(k, v)
	}

	// CreatedNode stays with the previous step so that UpdateState
	// recomputes this node as the next one.
	cfg, err := s.saveAs(node, s.lastCreated, merged, node)
	if err != nil {
		s.fail(err)
		return false
	}
	s.cfg = cfg
	s.st = merged
	s.current = node

	observability.LogSubgraphSuspended(s.opts.logger, s.cfg.ThreadID, sig.Path, sig.InterruptedNode, sig.Reason.String())
	return s.terminate(Output{
		Kind:     OutputInterrupt,
		Node:     node,
		Next:     node,
		State:    merged,
		Reason:   InterruptSubgraph,
		Subgraph: sig,
		Config:   cfg,
	})
}

// terminate emits the final output of the stream.
func (s *Stream) terminate(out Output) bool {
	if out.Kind == OutputEnd && s.cg.config.releaseThread && s.cg.config.checkpointer != nil {
		if err := s.cg.releaseThread(s.ctx, s.cfg.ThreadID); err != nil {
			s.fail(&CheckpointError{NodeID: END, Op: "release", Err: err})
			return false
		}
		observability.LogThreadReleased(s.opts.logger, s.cfg.ThreadID)
		out.Config.CheckpointID = ""
	}

	s.out = out
	s.done = true

	durationMs := float64(time.Since(s.start).Milliseconds())
	switch out.Kind {
	case OutputEnd:
		observability.LogRunComplete(s.opts.logger, s.cfg.ThreadID, durationMs, s.steps)
		s.opts.metrics.RecordGraphRun(s.ctx, observability.OutcomeCompleted, time.Since(s.start))
		s.endRunSpan(observability.OutcomeCompleted, nil)
	case OutputInterrupt:
		observability.LogRunInterrupted(s.opts.logger, s.cfg.ThreadID, out.Node, out.Reason.String(), durationMs)
		s.opts.metrics.RecordInterrupt(s.ctx, out.Node, out.Reason.String())
		s.opts.metrics.RecordGraphRun(s.ctx, observability.OutcomeInterrupted, time.Since(s.start))
		s.opts.spans.AddInterruptEvent(s.ctx, out.Node, out.Reason.String())
		s.endRunSpan(observability.OutcomeInterrupted, nil)
	}
	return true
}

// fail ends the stream with err.
func (s *Stream) fail(err error) {
	s.err = err
	s.done = true

	lastNode := s.lastNode
	var nodeErr *NodeError
	var maxErr *MaxIterationsError
	var cancelErr *CancellationError
	switch {
	case errors.As(err, &nodeErr):
		lastNode = nodeErr.NodeID
	case errors.As(err, &maxErr):
		lastNode = maxErr.LastNodeID
	case errors.As(err, &cancelErr):
		lastNode = cancelErr.NodeID
	}

	observability.LogRunError(s.opts.logger, s.cfg.ThreadID, err, float64(time.Since(s.start).Milliseconds()), lastNode)
	s.opts.metrics.RecordGraphRun(s.ctx, observability.OutcomeFailed, time.Since(s.start))
	s.endRunSpan(observability.OutcomeFailed, err)
}

func (s *Stream) endRunSpan(outcome string, err error) {
	if s.runSpan == nil {
		return
	}
	s.opts.spans.EndRunSpan(s.runSpan, outcome, err)
	s.runSpan = nil
}
