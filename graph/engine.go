package graph

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/ragflow/graph/emit"
)

// Graph is a compiled, immutable workflow graph.
//
// A Graph is safe for concurrent use: every Stream or Invoke call owns its own
// run state, so independent runs may execute in parallel against the same
// Graph. Nodes of a single run never overlap.
type Graph struct {
	channels    Channels
	nodes       map[string]Node
	order       []string
	static      map[string]string
	conditional map[string]conditionalEdge
	entry       string
	warnings    []Warning
	cfg         engineConfig
}

// Step is one executed node as seen by the caller.
type Step struct {
	// RunID identifies the run that produced this step.
	RunID string

	// Index is the 1-based step number within the run.
	Index int

	// Node is the name of the node that ran.
	Node string

	// State is a snapshot of the full merged state after the node's partial
	// was applied. Later steps never modify it.
	State State
}

// Stream executes the graph lazily, yielding one Step per executed node.
//
// Nothing runs until the sequence is iterated. Each iteration step:
//
//  1. fails with a StepBudgetError if the budget is already spent
//  2. runs the current node on a clone of the state
//  3. merges its partial into the state
//  4. persists and yields the step
//  5. resolves the transition (static edge, conditional edge, or END when the
//     node has no outgoing edge)
//
// The sequence ends after the node that routed to END, or with exactly one
// non-nil error. Breaking out of the loop stops the run once the current node
// has completed; no node is interrupted. The context is checked before every
// step and its error ends the run.
//
// The returned sequence is single-use. Iterating it again yields
// ErrStreamConsumed.
//
// Example:
//
//	for step, err := range g.Stream(ctx, graph.State{"question": q}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(step.Index, step.Node)
//	}
func (g *Graph) Stream(ctx context.Context, initial State, opts ...RunOption) iter.Seq2[Step, error] {
	rc := runConfig{budget: g.cfg.maxSteps}
	for _, opt := range opts {
		opt(&rc)
	}
	if rc.runID == "" {
		rc.runID = uuid.NewString()
	}

	var consumed atomic.Bool
	return func(yield func(Step, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(Step{}, ErrStreamConsumed)
			return
		}
		r := &run{
			g:       g,
			cfg:     rc,
			emitter: g.cfg.emitter,
		}
		if rc.emitter != nil {
			r.emitter = emit.Multi(g.cfg.emitter, rc.emitter)
		}
		r.execute(ctx, initial, yield)
	}
}

// Invoke runs the graph to completion and returns the final state.
//
// On failure Invoke returns the last state that was successfully emitted
// (nil if no step completed) together with the error.
func (g *Graph) Invoke(ctx context.Context, initial State, opts ...RunOption) (State, error) {
	var last State
	for step, err := range g.Stream(ctx, initial, opts...) {
		if err != nil {
			return last, err
		}
		last = step.State
	}
	return last, nil
}

// run is the private state of one Stream call.
type run struct {
	g       *Graph
	cfg     runConfig
	emitter emit.Emitter
	steps   int
}

func (r *run) execute(ctx context.Context, initial State, yield func(Step, error) bool) {
	g := r.g
	logger := g.cfg.logger.With("run_id", r.cfg.runID)

	g.cfg.metrics.RunStarted()
	defer g.cfg.metrics.RunFinished()

	if err := r.cfg.validate(); err != nil {
		r.fail(yield, "", err)
		return
	}

	state, err := g.channels.Merge(State{}, initial)
	if err != nil {
		r.fail(yield, "", fmt.Errorf("initial state: %w", err))
		return
	}

	current := g.entry
	for {
		if err := ctx.Err(); err != nil {
			r.fail(yield, current, err)
			return
		}
		if r.steps >= r.cfg.budget {
			r.fail(yield, current, &StepBudgetError{Budget: r.cfg.budget, Node: current})
			return
		}

		index := r.steps + 1
		r.emit(index, current, "node_start", nil)

		start := time.Now()
		partial, err := g.nodes[current].Run(ctx, state.Clone())
		latency := time.Since(start)
		if err != nil {
			g.cfg.metrics.RecordStep(current, "error", latency)
			r.fail(yield, current, &NodeError{
				Message: err.Error(),
				Code:    "NODE_FAILED",
				NodeID:  current,
				Step:    index,
				Cause:   err,
			})
			return
		}

		next, err := g.channels.Merge(state, partial)
		if err != nil {
			g.cfg.metrics.RecordStep(current, "error", latency)
			r.fail(yield, current, &NodeError{
				Message: "merge partial state: " + err.Error(),
				Code:    "MERGE_FAILED",
				NodeID:  current,
				Step:    index,
				Cause:   err,
			})
			return
		}
		state = next
		r.steps = index

		if g.cfg.store != nil {
			if err := g.cfg.store.SaveStep(ctx, r.cfg.runID, index, current, state.Clone()); err != nil {
				r.fail(yield, current, &EngineError{
					Message: "failed to save step: " + err.Error(),
					Code:    "STORE_ERROR",
					Cause:   err,
				})
				return
			}
		}

		g.cfg.metrics.RecordStep(current, "success", latency)
		r.emit(index, current, "node_end", map[string]any{
			"duration_ms": latency.Milliseconds(),
			"channels":    channelNames(partial),
		})

		if !yield(Step{RunID: r.cfg.runID, Index: index, Node: current, State: state.Clone()}, nil) {
			logger.Info("run stopped by caller", "node", current, "step", index)
			g.cfg.metrics.RecordRun("stopped")
			r.emit(index, current, "run_complete", map[string]any{"steps": index, "stopped": true})
			return
		}

		to, label, err := g.resolve(ctx, current, state, index)
		if err != nil {
			r.fail(yield, current, err)
			return
		}
		if label != "" {
			g.cfg.metrics.RecordRoute(current, label)
			r.emit(index, current, "route", map[string]any{"label": label, "to": to})
		}

		if to == END {
			logger.Info("run complete", "node", current, "steps", index)
			g.cfg.metrics.RecordRun("success")
			r.emit(index, current, "run_complete", map[string]any{"steps": index})
			return
		}
		current = to
	}
}

// resolve picks the node that follows from. The label is empty for static
// transitions and implicit terminals.
func (g *Graph) resolve(ctx context.Context, from string, state State, index int) (to, label string, err error) {
	if to, ok := g.static[from]; ok {
		return to, "", nil
	}
	ce, ok := g.conditional[from]
	if !ok {
		return END, "", nil
	}

	label, err = ce.decide(ctx, state.Clone())
	if err != nil {
		return "", "", &RoutingError{Node: from, Step: index, Cause: err}
	}
	to, ok = ce.routes[label]
	if !ok {
		return "", label, &RoutingError{Node: from, Label: label, Step: index}
	}
	return to, label, nil
}

func (r *run) fail(yield func(Step, error) bool, node string, err error) {
	r.g.cfg.logger.Error("run failed",
		"run_id", r.cfg.runID,
		"node", node,
		"step", r.steps,
		"err", err,
	)
	r.g.cfg.metrics.RecordRun(outcomeOf(err))
	r.emit(r.steps, node, "run_error", map[string]any{"error": err.Error()})
	yield(Step{}, err)
}

func (r *run) emit(step int, node, msg string, meta map[string]any) {
	r.emitter.Emit(emit.Event{
		RunID:  r.cfg.runID,
		Step:   step,
		NodeID: node,
		Msg:    msg,
		Meta:   meta,
	})
}

func channelNames(partial State) []string {
	return sortedKeys(partial)
}

// Entry returns the name of the entry point node.
func (g *Graph) Entry() string {
	return g.entry
}

// Nodes returns node names in registration order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Channels returns the declared channels in declaration order.
func (g *Graph) Channels() []Channel {
	return g.channels.List()
}

// Warnings returns the non-fatal findings reported at compile time.
func (g *Graph) Warnings() []Warning {
	out := make([]Warning, len(g.warnings))
	copy(out, g.warnings)
	return out
}

// StepBudget returns the default step budget of the graph's runs.
func (g *Graph) StepBudget() int {
	return g.cfg.maxSteps
}
