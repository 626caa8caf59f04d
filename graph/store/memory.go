package store

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory implementation of Store[S].
//
// States are kept by reference, so callers must hand it values that are not
// mutated afterwards (the graph engine saves a fresh clone of every step).
// Thread-safe. Data is lost when the process exits.
type MemStore[S any] struct {
	mu    sync.RWMutex
	steps map[string][]StepRecord[S]
	order []string
}

// NewMemStore creates a new in-memory store.
//
// Example:
//
//	st := store.NewMemStore[graph.State]()
//	g, _ := b.Compile(graph.WithStore(st))
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		steps: make(map[string][]StepRecord[S]),
	}
}

// SaveStep records a step, replacing any earlier record with the same number.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := StepRecord[S]{Step: step, NodeID: nodeID, State: state}

	records, seen := m.steps[runID]
	if !seen {
		m.order = append(m.order, runID)
	}
	for i := range records {
		if records[i].Step == step {
			records[i] = record
			return nil
		}
	}
	m.steps[runID] = append(records, record)
	return nil
}

// LoadLatest returns the step with the highest step number, regardless of
// the order in which steps were saved.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (state S, step int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		var zero S
		return zero, 0, ErrNotFound
	}

	latest := records[0]
	for _, record := range records[1:] {
		if record.Step > latest.Step {
			latest = record
		}
	}
	return latest.State, latest.Step, nil
}

// LoadSteps returns a copy of the run's history sorted by step.
func (m *MemStore[S]) LoadSteps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.steps[runID]
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	out := make([]StepRecord[S], len(records))
	copy(out, records)
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

// ListRuns returns run IDs in the order their first step was saved.
func (m *MemStore[S]) ListRuns(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}
