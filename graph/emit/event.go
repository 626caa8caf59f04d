// Package emit carries run events out of the graph engine.
//
// The engine reports every step as a small sequence of events (node_start,
// node_end, route) and closes each run with run_complete or run_error. An
// Emitter decides where they go: nowhere, memory, slog or OpenTelemetry.
package emit

// Event names emitted by the graph engine.
const (
	NodeStart   = "node_start"
	NodeEnd     = "node_end"
	Route       = "route"
	RunComplete = "run_complete"
	RunError    = "run_error"
)

// Event represents one observability event of a graph run.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Step is the 1-based step number. Zero for run-level events raised
	// before the first step.
	Step int

	// NodeID identifies the node the event is about. Empty for run-level
	// events that happen before any node is selected.
	NodeID string

	// Msg is the event name, one of the constants above.
	Msg string

	// Meta contains event-specific data. Keys used by the engine:
	//   - "duration_ms": node execution time (node_end)
	//   - "channels": channel names written by the node (node_end)
	//   - "label", "to": decision label and destination (route)
	//   - "steps": completed step count (run_complete)
	//   - "error": error text (run_error)
	Meta map[string]any
}
