package dbexec

import (
	"context"
	"sync"

	"github.com/querylab/biflow/graph"
)

// MockExecutor is a scripted Executor for tests. Each call consumes the
// next scripted outcome; when the script runs out the last outcome
// repeats. Queries are recorded for assertions.
type MockExecutor struct {
	// Outcomes is the sequence of results to return, in order.
	Outcomes []MockOutcome

	// Queries records every statement received.
	Queries []string

	mu    sync.Mutex
	index int
}

// MockOutcome is one scripted Query result.
type MockOutcome struct {
	Rows []graph.Row
	Err  error
}

// Query implements Executor.
func (m *MockExecutor) Query(ctx context.Context, query string) ([]graph.Row, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if len(m.Outcomes) == 0 {
		return []graph.Row{}, nil
	}
	out := m.Outcomes[m.index]
	if m.index < len(m.Outcomes)-1 {
		m.index++
	}
	return out.Rows, out.Err
}
