package graph

import (
	"context"
	"strconv"
)

// Node represents a processing step in the workflow graph.
//
// Run receives a private copy of the merged state and returns a partial State
// holding only the channels it changes. Run must not mutate its input. Side
// effects such as network calls are the node's own responsibility: the engine
// performs no retry and imposes no timeout around Run (see WithRetry and
// WithTimeout for opt-in wrappers).
type Node interface {
	Run(ctx context.Context, state State) (State, error)
}

// NodeFunc is a function adapter that implements the Node interface.
//
// Example:
//
//	retrieve := graph.NodeFunc(func(ctx context.Context, s graph.State) (graph.State, error) {
//	    q, _ := graph.Get[string](s, "question")
//	    docs, err := retriever.Retrieve(ctx, q)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return graph.State{"documents": docs}, nil
//	})
type NodeFunc func(ctx context.Context, state State) (State, error)

// Run implements the Node interface for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, state State) (State, error) {
	return f(ctx, state)
}

// NodeError reports a failure attributed to a specific node during a run.
//
// Code is NODE_FAILED when the node's own Run returned an error and
// MERGE_FAILED when its partial could not be merged into the state.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Step is the 1-based step index at which the node ran.
	Step int

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.NodeID != "" {
		prefix := "node " + e.NodeID
		if e.Step > 0 {
			prefix += " (step " + strconv.Itoa(e.Step) + ")"
		}
		return prefix + ": " + msg
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}
