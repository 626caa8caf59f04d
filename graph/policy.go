package graph

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy defines automatic retry for transient node failures.
//
// Retry lives inside the node boundary: the engine never retries on its own,
// and a node wrapped with WithRetry still counts as a single step.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between attempts.
	// The delay before retry n is min(BaseDelay * 2^n, MaxDelay) + jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is worth another attempt.
	// If nil, no error is retried.
	Retryable func(error) bool
}

// Validate checks the policy:
//   - MaxAttempts must be >= 1
//   - if both MaxDelay and BaseDelay are set, MaxDelay must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

// WithRetry wraps node so that retryable failures are attempted again with
// exponential backoff and jitter.
//
// A non-retryable error is returned as is. When every attempt fails the error
// wraps both ErrMaxAttemptsExceeded and the last failure. Cancellation of ctx
// while waiting between attempts returns ctx.Err().
//
// Example:
//
//	search := graph.WithRetry(webSearchNode, graph.RetryPolicy{
//	    MaxAttempts: 3,
//	    BaseDelay:   200 * time.Millisecond,
//	    MaxDelay:    2 * time.Second,
//	    Retryable:   tool.IsTransient,
//	})
func WithRetry(node Node, policy RetryPolicy) Node {
	return &retryNode{node: node, policy: policy}
}

type retryNode struct {
	node   Node
	policy RetryPolicy
}

func (n *retryNode) Run(ctx context.Context, state State) (State, error) {
	if err := n.policy.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < n.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, n.policy.BaseDelay, n.policy.MaxDelay, nil)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		out, err := n.node.Run(ctx, state)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if n.policy.Retryable == nil || !n.policy.Retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, n.policy.MaxAttempts, lastErr)
}

// computeBackoff returns min(base * 2^attempt, maxDelay) + jitter(0, base).
//
// attempt is zero-based (0 is the first retry). A nil rng uses the global
// source.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}

	exponentialDelay := base * (1 << attempt)
	if maxDelay > 0 && (exponentialDelay > maxDelay || exponentialDelay <= 0) {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}

	return exponentialDelay + jitter
}
