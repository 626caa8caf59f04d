package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout wraps node so that each Run gets a context with deadline d.
//
// If the node returns after the deadline expired, its result is discarded and
// an EngineError coded NODE_TIMEOUT is returned instead. The node must honour
// ctx for the deadline to interrupt it; the wrapper never abandons a running
// node. A non-positive d disables the timeout.
func WithTimeout(node Node, d time.Duration) Node {
	return &timeoutNode{node: node, timeout: d}
}

type timeoutNode struct {
	node    Node
	timeout time.Duration
}

func (n *timeoutNode) Run(ctx context.Context, state State) (State, error) {
	if n.timeout <= 0 {
		return n.node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	out, err := n.node.Run(timeoutCtx, state)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &EngineError{
			Message: fmt.Sprintf("node exceeded timeout of %v", n.timeout),
			Code:    "NODE_TIMEOUT",
			Cause:   context.DeadlineExceeded,
		}
	}
	return out, err
}
