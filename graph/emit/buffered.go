package emit

import "sync"

// BufferedEmitter keeps every event in memory, grouped by run.
//
// It backs tests and the CLI server's run history. Safe for concurrent use.
//
// Example:
//
//	events := emit.NewBufferedEmitter()
//	g, _ := b.Compile(graph.WithEmitter(events))
//	_, _ = g.Invoke(ctx, initial, graph.WithRunID("run-001"))
//
//	routes := events.GetHistoryWithFilter("run-001", emit.HistoryFilter{Msg: emit.Route})
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
	order  []string
}

// HistoryFilter selects events. All set fields must match.
type HistoryFilter struct {
	NodeID  string // empty matches any node
	Msg     string // empty matches any event name
	MinStep *int   // nil means no lower bound
	MaxStep *int   // nil means no upper bound
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
	}
}

// Emit stores the event under its run ID.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.events[event.RunID]; !seen {
		b.order = append(b.order, event.RunID)
	}
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// GetHistory returns a copy of a run's events in emission order. Unknown run
// IDs yield an empty, non-nil slice.
func (b *BufferedEmitter) GetHistory(runID string) []Event {
	return b.GetHistoryWithFilter(runID, HistoryFilter{})
}

// GetHistoryWithFilter returns the run's events that match filter.
func (b *BufferedEmitter) GetHistoryWithFilter(runID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[runID] {
		if filter.matches(event) {
			result = append(result, event)
		}
	}
	return result
}

// Runs returns the run IDs seen so far, oldest first.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Clear drops the events of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		b.order = nil
		return
	}

	delete(b.events, runID)
	for i, id := range b.order {
		if id == runID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (f HistoryFilter) matches(event Event) bool {
	if f.NodeID != "" && event.NodeID != f.NodeID {
		return false
	}
	if f.Msg != "" && event.Msg != f.Msg {
		return false
	}
	if f.MinStep != nil && event.Step < *f.MinStep {
		return false
	}
	if f.MaxStep != nil && event.Step > *f.MaxStep {
		return false
	}
	return true
}
