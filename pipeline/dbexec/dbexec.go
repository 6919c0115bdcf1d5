// Package dbexec runs generated SQL against the analytics database.
//
// The execution node in the pipeline depends on the Executor interface
// only; SQLExecutor is the database/sql implementation and MockExecutor
// serves tests.
package dbexec

import (
	"context"
	"fmt"

	"github.com/querylab/biflow/graph"
)

// Executor runs one read query and returns its rows.
type Executor interface {
	Query(ctx context.Context, query string) ([]graph.Row, error)
}

// ExecError is a structured query failure. Its detail carries the
// database's raw complaint so a correction prompt can include it.
type ExecError struct {
	// Code is the database error class when known, e.g. "1064".
	Code string

	// Message is the short failure description.
	Message string

	// Query is the statement that failed.
	Query string

	cause error
}

func (e *ExecError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query failed (%s): %s", e.Code, e.Message)
	}
	return "query failed: " + e.Message
}

// Detail returns the raw database complaint for error reporting.
func (e *ExecError) Detail() string { return e.Message }

// Unwrap exposes the driver error for errors.Is and errors.As.
func (e *ExecError) Unwrap() error { return e.cause }
