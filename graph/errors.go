// Package graph provides the workflow graph definition and execution engine.
//
// A graph is a set of named nodes over a shared channel record (State), joined
// by static and conditional edges. Builder collects nodes and edges, Compile
// validates them into an immutable Graph, and Graph.Stream walks the graph
// from its entry point, yielding one Step per executed node until END or the
// step budget is exhausted.
package graph

import (
	"errors"
	"strconv"
)

// ErrInvalidGraph is wrapped by every configuration error reported while
// building or compiling a graph. No run can start from an invalid graph.
var ErrInvalidGraph = errors.New("invalid graph")

// ErrRouting is wrapped by RoutingError: a decision function returned a label
// its edge does not map, or failed outright.
var ErrRouting = errors.New("routing failed")

// ErrStepBudgetExceeded is wrapped by StepBudgetError: the run needed more
// node executions than its step budget allows. Callers may retry with a larger
// budget or treat the graph as non-converging.
var ErrStepBudgetExceeded = errors.New("execution exceeded step budget")

// ErrUnknownChannel indicates a partial state carried a key that is not a
// declared channel.
var ErrUnknownChannel = errors.New("unknown channel")

// ErrAppendType indicates an Append channel received a value that cannot be
// concatenated onto its current value.
var ErrAppendType = errors.New("append type mismatch")

// ErrStreamConsumed is yielded when a run stream is iterated a second time.
var ErrStreamConsumed = errors.New("run stream already consumed")

// ErrInvalidRetryPolicy indicates a RetryPolicy failed validation.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrMaxAttemptsExceeded is returned by a WithRetry node once every attempt
// has failed.
var ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

// ConfigError describes one graph configuration problem.
type ConfigError struct {
	// Code is a machine-readable error code, e.g. DANGLING_EDGE.
	Code string

	// Message is the human-readable description.
	Message string

	// Node names the node, channel or edge source involved, if any.
	Node string
}

func (e *ConfigError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap lets errors.Is(err, ErrInvalidGraph) match every ConfigError.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidGraph
}

// RoutingError reports a failed conditional transition.
type RoutingError struct {
	// Node is the source node of the conditional edge.
	Node string

	// Label is the label returned by the decision function. Empty when the
	// decision function itself failed.
	Label string

	// Step is the 1-based step index of Node.
	Step int

	// Cause is the decision function's error, if it returned one.
	Cause error
}

func (e *RoutingError) Error() string {
	if e.Cause != nil {
		return "routing from " + e.Node + ": decision failed: " + e.Cause.Error()
	}
	return "routing from " + e.Node + ": label " + strconv.Quote(e.Label) + " has no route"
}

// Unwrap exposes both ErrRouting and the decision function's error.
func (e *RoutingError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrRouting, e.Cause}
	}
	return []error{ErrRouting}
}

// StepBudgetError reports that a run hit its step budget.
type StepBudgetError struct {
	// Budget is the configured maximum number of node executions.
	Budget int

	// Node is the node that would have run next.
	Node string
}

func (e *StepBudgetError) Error() string {
	return "step budget of " + strconv.Itoa(e.Budget) + " exhausted before node " + e.Node
}

func (e *StepBudgetError) Unwrap() error {
	return ErrStepBudgetExceeded
}

// EngineError represents a failure of the engine's own machinery, such as a
// step store that cannot persist a step or an invalid run option.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
