// Package store persists the step history of graph runs.
//
// The engine calls SaveStep after every merged step. Reading the history
// back (latest state, full step list, known runs) serves run inspection such
// as the CLI server's /runs endpoints. Graph definitions are never stored.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested run ID has no saved steps.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store persists run state step by step.
//
// Implementations:
//   - MemStore: in-process maps, for tests and single-shot CLI runs
//   - SQLiteStore: single-file database (modernc.org/sqlite, no cgo)
//   - MySQLStore: shared relational database
//   - RedisStore: shared key-value store with optional TTL
//
// Type parameter S is the state type to persist. Database-backed stores
// serialize it as JSON, so S must round-trip through encoding/json.
type Store[S any] interface {
	// SaveStep persists the state produced by a node execution. Saving the
	// same runID and step twice overwrites the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state with the highest step number for runID,
	// or ErrNotFound.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// LoadSteps returns every saved step of runID in step order, or
	// ErrNotFound.
	LoadSteps(ctx context.Context, runID string) ([]StepRecord[S], error)

	// ListRuns returns the IDs of every run with at least one saved step,
	// oldest first.
	ListRuns(ctx context.Context) ([]string, error)
}

// StepRecord is a single step of a run's history.
type StepRecord[S any] struct {
	// Step is the 1-based step number.
	Step int `json:"step"`

	// NodeID identifies which node produced this state.
	NodeID string `json:"node"`

	// State is the merged state after the step.
	State S `json:"state"`
}
