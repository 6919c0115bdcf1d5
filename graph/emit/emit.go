// Package emit provides pluggable observability for workflow runs.
//
// The executor publishes an Event for every significant moment of a run
// (run start, node finish, retry, terminal outcome). An Emitter decides
// what to do with them: write structured logs, open spans, or nothing.
package emit

// Event is one observability record from a workflow run.
type Event struct {
	// RunID identifies the run that produced the event.
	RunID string

	// Step is the 1-indexed step number, or zero for run-level events.
	Step int

	// NodeID names the node involved, empty for run-level events.
	NodeID string

	// Msg is the event kind, e.g. "run_start", "node_end", "retry".
	Msg string

	// Meta carries event-specific fields such as "duration_ms",
	// "error", "outcome" or "edge".
	Meta map[string]any
}

// Emitter receives events from the executor.
//
// Implementations must be safe for concurrent use, must not block the
// run, and must not panic; backend failures are swallowed or logged
// internally.
type Emitter interface {
	Emit(event Event)
}

// Null discards every event. It is the executor's default.
type Null struct{}

// Emit implements Emitter.
func (Null) Emit(Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(ev Event) {
	for _, e := range m {
		e.Emit(ev)
	}
}
