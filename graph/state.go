// Package graph provides the core workflow engine: a validated graph of
// named nodes that read and mutate one shared State, routers that pick the
// next node from that state, and an executor that drives the run loop with
// retry-bounded loop edges, per-node timeouts and a global step limit.
package graph

import "time"

// ResultKey identifies one derived result slot in State.
//
// Each key has exactly one owning node in a valid Graph. A node may only
// write the keys it declared with Owns, and may only rely on reading a key
// if every path from the entry node passes through the key's owner first
// (checked at Build time).
type ResultKey string

// The known result kinds produced by workflow nodes.
const (
	// KeyIntent is the classified intent label for the question.
	KeyIntent ResultKey = "intent"

	// KeyAmbiguity is the ambiguity-detection result, present when the
	// question needs clarification before it can be answered.
	KeyAmbiguity ResultKey = "ambiguity"

	// KeySchemas is the set of table schemas selected as relevant.
	KeySchemas ResultKey = "schemas"

	// KeyReasoning is the step-by-step query plan text.
	KeyReasoning ResultKey = "reasoning"

	// KeySQL is the generated (or corrected) SQL query text.
	KeySQL ResultKey = "sql"

	// KeyRows is the query execution result set.
	KeyRows ResultKey = "rows"

	// KeyChart is the chart specification derived from the result set.
	KeyChart ResultKey = "chart"

	// KeyDiagnosis is the insights/key-findings record.
	KeyDiagnosis ResultKey = "diagnosis"

	// KeyAnswer is the final natural-language answer.
	KeyAnswer ResultKey = "answer"
)

// Row is a single result row keyed by column name.
type Row = map[string]any

// Column describes one column of a table schema.
type Column struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Comment string `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// TableSchema describes one table available for query generation.
type TableSchema struct {
	Name    string   `json:"name" yaml:"name"`
	Comment string   `json:"comment,omitempty" yaml:"comment,omitempty"`
	Columns []Column `json:"columns" yaml:"columns"`
}

// Ambiguity describes why a question could not be answered as asked and
// what clarification to request from the user.
type Ambiguity struct {
	Type          string   `json:"type"`
	Clarification string   `json:"clarification"`
	Options       []string `json:"options,omitempty"`
}

// ChartSpec is the visualization configuration produced by the chart node.
// The engine treats it as opaque; schema correctness is the consumer's
// concern.
type ChartSpec struct {
	ChartType string `json:"chartType"`
	Title     string `json:"title,omitempty"`
	XField    string `json:"xField,omitempty"`
	YField    string `json:"yField,omitempty"`
}

// Diagnosis holds the insight summary extracted from a result set.
type Diagnosis struct {
	Summary  string   `json:"summary"`
	Findings []string `json:"findings,omitempty"`
}

// Input is the immutable original request for one run. It is set when the
// run starts and never mutated afterwards.
type Input struct {
	// Question is the user's natural-language question.
	Question string `json:"question"`

	// SessionID identifies the conversation, if any.
	SessionID string `json:"session_id,omitempty"`

	// Language is the output language tag (e.g. "en-US").
	Language string `json:"language,omitempty"`

	// Schemas is the full set of table schemas the run may select from.
	Schemas []TableSchema `json:"schemas,omitempty"`
}

// ErrorRecord is the structured error slot in State. It is non-nil exactly
// when the most recently executed node reported failure, and is written
// only by the Executor.
type ErrorRecord struct {
	// SourceNode is the node whose invocation failed.
	SourceNode string `json:"source_node"`

	// Message is the short failure description. A synthesized timeout
	// always carries the message "timeout".
	Message string `json:"message"`

	// RawDetail is the collaborator's raw error detail, when available.
	RawDetail string `json:"raw_detail,omitempty"`
}

// StepOutcome classifies one history entry.
type StepOutcome string

const (
	// StepOK records a node invocation that completed successfully.
	StepOK StepOutcome = "ok"

	// StepError records a node invocation that reported failure.
	StepError StepOutcome = "error"

	// StepTimeout records a node invocation cut off by its timeout.
	StepTimeout StepOutcome = "timeout"
)

// StepRecord is one entry of the append-only run history.
type StepRecord struct {
	NodeID     string      `json:"node_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    StepOutcome `json:"outcome"`
}

// Outcome names the terminal classification of a run.
type Outcome string

const (
	// OutcomeSucceeded means the workflow reached its normal end.
	OutcomeSucceeded Outcome = "succeeded"

	// OutcomeFailed means the run stopped for an operational reason
	// (cancellation, step limit). See State.Reason for which.
	OutcomeFailed Outcome = "failed"

	// OutcomeRetriesExhausted means a repair loop hit its bound.
	OutcomeRetriesExhausted Outcome = "retries-exhausted"

	// OutcomeUnhandledIntent means a fan-out router found no branch for
	// the classified intent. The input was out of scope, nothing broke.
	OutcomeUnhandledIntent Outcome = "unhandled-intent"
)

// Terminal reasons reported in State.Reason.
const (
	ReasonCompleted = "completed"
	ReasonCancelled = "cancelled"
	ReasonStepLimit = "step-limit-exceeded"
	ReasonExhausted = "exhausted-retries"
	ReasonUnhandled = "unhandled-intent"
)

// State is the single mutable record threaded through every node invocation
// of one run. It is owned exclusively by that run; the Executor creates it,
// advances it, and returns it once terminated. Nodes receive it by value and
// must treat it as read-only; all node writes travel back through Delta.
type State struct {
	// Input is the original request. Never mutated after creation.
	Input Input `json:"input"`

	// Derived results, one optional slot per ResultKey. Each slot is
	// written only by its owning node (via Delta), never deleted, only
	// overwritten.
	Intent    *string        `json:"intent,omitempty"`
	Ambiguity *Ambiguity     `json:"ambiguity,omitempty"`
	Schemas   *[]TableSchema `json:"schemas,omitempty"`
	Reasoning *string        `json:"reasoning,omitempty"`
	SQL       *string        `json:"sql,omitempty"`
	Rows      *[]Row         `json:"rows,omitempty"`
	Chart     *ChartSpec     `json:"chart,omitempty"`
	Diagnosis *Diagnosis     `json:"diagnosis,omitempty"`
	Answer    *string        `json:"answer,omitempty"`

	// Error is non-nil iff the most recently executed node failed.
	// Written only by the Executor.
	Error *ErrorRecord `json:"error,omitempty"`

	// RetryCounts maps loop-edge name to attempts used. Incremented only
	// by the Executor, never by a node.
	RetryCounts map[string]int `json:"retry_counts"`

	// Terminated is set by the Executor when a terminal decision is
	// reached. Once true, no further node executes for this run.
	Terminated bool    `json:"terminated"`
	Outcome    Outcome `json:"outcome,omitempty"`
	Reason     string  `json:"reason,omitempty"`

	// History is the append-only ordered record of node invocations.
	History []StepRecord `json:"history"`
}

// NewState creates a fresh State for one run from the caller's input.
func NewState(input Input) State {
	return State{
		Input:       input,
		RetryCounts: make(map[string]int),
	}
}

// Delta is a partial state update produced by one node invocation. Only the
// non-nil fields are applied, and each applied field must correspond to a
// ResultKey the producing node owns.
type Delta struct {
	Intent    *string
	Ambiguity *Ambiguity
	Schemas   *[]TableSchema
	Reasoning *string
	SQL       *string
	Rows      *[]Row
	Chart     *ChartSpec
	Diagnosis *Diagnosis
	Answer    *string
}

// Keys reports the set of result keys this delta writes.
func (d Delta) Keys() []ResultKey {
	var keys []ResultKey
	if d.Intent != nil {
		keys = append(keys, KeyIntent)
	}
	if d.Ambiguity != nil {
		keys = append(keys, KeyAmbiguity)
	}
	if d.Schemas != nil {
		keys = append(keys, KeySchemas)
	}
	if d.Reasoning != nil {
		keys = append(keys, KeyReasoning)
	}
	if d.SQL != nil {
		keys = append(keys, KeySQL)
	}
	if d.Rows != nil {
		keys = append(keys, KeyRows)
	}
	if d.Chart != nil {
		keys = append(keys, KeyChart)
	}
	if d.Diagnosis != nil {
		keys = append(keys, KeyDiagnosis)
	}
	if d.Answer != nil {
		keys = append(keys, KeyAnswer)
	}
	return keys
}

// apply merges the delta's set fields into the state. Ownership is checked
// by the Executor before apply is called.
func (s *State) apply(d Delta) {
	if d.Intent != nil {
		s.Intent = d.Intent
	}
	if d.Ambiguity != nil {
		s.Ambiguity = d.Ambiguity
	}
	if d.Schemas != nil {
		s.Schemas = d.Schemas
	}
	if d.Reasoning != nil {
		s.Reasoning = d.Reasoning
	}
	if d.SQL != nil {
		s.SQL = d.SQL
	}
	if d.Rows != nil {
		s.Rows = d.Rows
	}
	if d.Chart != nil {
		s.Chart = d.Chart
	}
	if d.Diagnosis != nil {
		s.Diagnosis = d.Diagnosis
	}
	if d.Answer != nil {
		s.Answer = d.Answer
	}
}

// SelectedSchemas returns the schema selection, or nil when unset.
func (s State) SelectedSchemas() []TableSchema {
	if s.Schemas == nil {
		return nil
	}
	return *s.Schemas
}

// ResultRows returns the query result set, or nil when unset.
func (s State) ResultRows() []Row {
	if s.Rows == nil {
		return nil
	}
	return *s.Rows
}

// StringOf is a convenience for building pointer fields in a Delta.
func StringOf(s string) *string { return &s }

// RowsOf wraps a result set for use in a Delta. A non-nil pointer to an
// empty slice distinguishes "query returned no rows" from "not executed".
func RowsOf(rows []Row) *[]Row { return &rows }

// SchemasOf wraps a schema selection for use in a Delta.
func SchemasOf(schemas []TableSchema) *[]TableSchema { return &schemas }
