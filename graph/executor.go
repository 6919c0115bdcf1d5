package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/querylab/biflow/graph/emit"
	"github.com/querylab/biflow/graph/store"
)

// DefaultNodeTimeout bounds a single node invocation unless overridden.
const DefaultNodeTimeout = 60 * time.Second

// Executor drives runs over a validated Graph. It is stateless across
// runs and safe for concurrent use; every Run gets its own State.
//
// Execution is strictly sequential: one node at a time, each followed by
// its router's decision. The executor owns the operational concerns the
// nodes and routers stay free of: per-node timeouts, panic recovery,
// loop-edge retry accounting, the global step limit, cancellation, and
// observability.
type Executor struct {
	graph       *Graph
	stepLimit   int
	nodeTimeout time.Duration
	emitter     emit.Emitter
	metrics     *Metrics
	archive     store.Archive
}

// NewExecutor creates an Executor for the graph. Build warnings are
// forwarded to the configured emitter as graph_warning events.
func NewExecutor(g *Graph, opts ...Option) *Executor {
	e := &Executor{
		graph:       g,
		stepLimit:   DefaultStepLimit,
		nodeTimeout: DefaultNodeTimeout,
		emitter:     emit.Null{},
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, w := range g.Warnings() {
		e.emitter.Emit(emit.Event{Msg: "graph_warning", Meta: map[string]any{"warning": w}})
	}
	return e
}

// Run executes the workflow to a terminal state.
//
// The returned State is always well formed and terminated when the error
// is nil, including operational endings: cancellation, the step limit and
// exhausted retries all come back as terminal outcomes on the State, not
// as errors. A non-nil error means the engine itself detected a contract
// violation mid-run (an undeclared transition, a node writing keys it
// does not own); the partially advanced State is returned for inspection
// but is not terminal.
func (e *Executor) Run(ctx context.Context, input Input) (State, error) {
	return e.run(ctx, input, nil)
}

// RunStream is Run with a streaming callback. Every chunk a node pushes
// is forwarded to onChunk, tagged with the emitting node, in emission
// order, before the run returns. Chunks delivered before a node fails
// stay delivered.
func (e *Executor) RunStream(ctx context.Context, input Input, onChunk ChunkHandler) (State, error) {
	return e.run(ctx, input, onChunk)
}

func (e *Executor) run(ctx context.Context, input Input, onChunk ChunkHandler) (State, error) {
	runID := uuid.NewString()
	state := NewState(input)
	startedAt := time.Now()

	e.metrics.runStarted()
	e.emitter.Emit(emit.Event{RunID: runID, Msg: "run_start", Meta: map[string]any{
		"entry":    e.graph.entry,
		"question": input.Question,
	}})

	cur := e.graph.entry
	var engineErr error
steps:
	for step := 1; ; step++ {
		// Cancellation is honored between steps only. A node that is
		// already running finishes (or times out) before the run ends.
		if err := ctx.Err(); err != nil {
			e.finish(&state, OutcomeFailed, ReasonCancelled)
			break
		}
		if step > e.stepLimit {
			e.finish(&state, OutcomeFailed, ReasonStepLimit)
			break
		}

		spec := e.graph.nodes[cur]
		var sink StreamSink = NullSink{}
		if onChunk != nil {
			sink = &boundSink{nodeID: cur, fn: onChunk}
		}

		started := time.Now()
		res, outcome := e.invoke(ctx, spec, state, sink)
		finished := time.Now()

		for _, k := range res.Delta.Keys() {
			if !ownsKey(spec, k) {
				engineErr = engineErrorf(cur, "wrote key %q outside its declared set", k)
				break steps
			}
		}
		state.apply(res.Delta)
		if res.Err != nil {
			state.Error = errorRecord(cur, res.Err, outcome)
		} else {
			state.Error = nil
		}
		state.History = append(state.History, StepRecord{
			NodeID:     cur,
			StartedAt:  started,
			FinishedAt: finished,
			Outcome:    outcome,
		})

		e.metrics.observeStep(cur, outcome, finished.Sub(started))
		meta := map[string]any{"duration_ms": finished.Sub(started).Milliseconds()}
		if res.Err != nil {
			meta["error"] = res.Err.Error()
		}
		e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: cur, Msg: "node_end", Meta: meta})

		decision := spec.router.Decide(state)
		if decision.Terminal {
			e.finish(&state, decision.Outcome, decision.Reason)
			break
		}

		next := decision.Next
		if !e.graph.succ[cur][next] {
			engineErr = engineErrorf(cur, "router chose undeclared transition to %q", next)
			break
		}
		if le := e.graph.loops[cur][next]; le != nil {
			if state.RetryCounts[le.Name] >= le.MaxRetries {
				e.finish(&state, OutcomeRetriesExhausted, ReasonExhausted)
				break
			}
			state.RetryCounts[le.Name]++
			e.metrics.observeRetry(le.Name)
			e.emitter.Emit(emit.Event{RunID: runID, Step: step, NodeID: cur, Msg: "retry", Meta: map[string]any{
				"edge":    le.Name,
				"attempt": state.RetryCounts[le.Name],
			}})
		}
		cur = next
	}

	if engineErr == nil {
		e.metrics.runFinished(state.Outcome, state.Reason)
		e.emitter.Emit(emit.Event{RunID: runID, Msg: "run_end", Meta: map[string]any{
			"outcome": string(state.Outcome),
			"reason":  state.Reason,
			"steps":   len(state.History),
		}})
		e.archiveRun(ctx, runID, state, startedAt)
	} else {
		e.metrics.runFinished(OutcomeFailed, "engine-error")
		e.emitter.Emit(emit.Event{RunID: runID, Msg: "run_end", Meta: map[string]any{
			"error": engineErr.Error(),
		}})
	}
	return state, engineErr
}

// invoke runs one node under its timeout with panic recovery. On timeout
// the node's goroutine is left to drain; its context is cancelled so
// collaborator calls abort, and its late result and stream pushes are
// discarded.
func (e *Executor) invoke(ctx context.Context, spec *nodeSpec, state State, sink StreamSink) (NodeResult, StepOutcome) {
	timeout := spec.timeout
	if timeout == 0 {
		timeout = e.nodeTimeout
	}

	done := make(chan NodeResult, 1)
	nodeCtx := ctx
	if timeout > 0 {
		// The node runs detached from run-level cancellation so an
		// in-flight step always completes or times out on its own.
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- NodeResult{Err: fmt.Errorf("%w: %v", ErrNodePanic, r)}
			}
		}()
		done <- spec.node.Run(nodeCtx, state, sink)
	}()

	if timeout > 0 {
		select {
		case res := <-done:
			return res, stepOutcome(res)
		case <-nodeCtx.Done():
			// The abandoned goroutine keeps its sink; cut it off so a
			// late Push cannot reach the handler after the run returns.
			if bs, ok := sink.(*boundSink); ok {
				bs.disarm()
			}
			return NodeResult{Err: ErrNodeTimeout}, StepTimeout
		}
	}
	res := <-done
	return res, stepOutcome(res)
}

func stepOutcome(res NodeResult) StepOutcome {
	if res.Err != nil {
		return StepError
	}
	return StepOK
}

func errorRecord(nodeID string, err error, outcome StepOutcome) *ErrorRecord {
	rec := &ErrorRecord{SourceNode: nodeID, Message: err.Error()}
	if outcome == StepTimeout {
		rec.Message = "timeout"
		rec.RawDetail = err.Error()
		return rec
	}
	var detailed DetailedError
	if errors.As(err, &detailed) {
		rec.RawDetail = detailed.Detail()
	}
	return rec
}

func ownsKey(spec *nodeSpec, key ResultKey) bool {
	for _, k := range spec.owns {
		if k == key {
			return true
		}
	}
	return false
}

func (e *Executor) finish(state *State, outcome Outcome, reason string) {
	state.Terminated = true
	state.Outcome = outcome
	state.Reason = reason
}

// archiveRun saves the terminal run best effort. The save uses a context
// detached from the run's so a cancelled run still gets archived.
func (e *Executor) archiveRun(ctx context.Context, runID string, state State, startedAt time.Time) {
	if e.archive == nil {
		return
	}
	final, err := json.Marshal(state)
	if err != nil {
		e.emitter.Emit(emit.Event{RunID: runID, Msg: "archive_error", Meta: map[string]any{"error": err.Error()}})
		return
	}
	steps := make([]store.StepEntry, len(state.History))
	for i, h := range state.History {
		steps[i] = store.StepEntry{
			Step:       i + 1,
			NodeID:     h.NodeID,
			Outcome:    string(h.Outcome),
			StartedAt:  h.StartedAt,
			FinishedAt: h.FinishedAt,
		}
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err = e.archive.SaveRun(saveCtx, store.RunRecord{
		RunID:      runID,
		Question:   state.Input.Question,
		Outcome:    string(state.Outcome),
		Reason:     state.Reason,
		Steps:      steps,
		FinalState: final,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	})
	if err != nil {
		e.emitter.Emit(emit.Event{RunID: runID, Msg: "archive_error", Meta: map[string]any{"error": err.Error()}})
	}
}
