// Package store archives completed workflow runs.
//
// An Archive is an optional executor collaborator: when configured, the
// executor writes one RunRecord per terminal run, best effort. Backends
// range from an in-memory map for tests to SQLite for single-process
// deployments and MySQL for shared ones.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("run not found")

// StepEntry is one executed step inside an archived run.
type StepEntry struct {
	Step       int       `json:"step"`
	NodeID     string    `json:"node_id"`
	Outcome    string    `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunRecord is the archived form of a completed run. FinalState holds the
// terminal workflow state as JSON; the archive does not interpret it.
type RunRecord struct {
	RunID      string          `json:"run_id"`
	Question   string          `json:"question"`
	Outcome    string          `json:"outcome"`
	Reason     string          `json:"reason"`
	Steps      []StepEntry     `json:"steps"`
	FinalState json.RawMessage `json:"final_state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Archive persists completed runs.
//
// Implementations must be safe for concurrent use. SaveRun overwrites an
// existing record with the same run ID.
type Archive interface {
	SaveRun(ctx context.Context, rec RunRecord) error

	// LoadRun returns the archived record, or ErrNotFound.
	LoadRun(ctx context.Context, runID string) (RunRecord, error)

	// ListRuns returns the most recent runs, newest first, at most limit
	// entries. A limit of zero or below means no limit.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	Close() error
}
