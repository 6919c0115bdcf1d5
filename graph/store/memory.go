package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryArchive keeps run records in a map. Intended for tests and
// development; records are lost when the process exits.
type MemoryArchive struct {
	mu   sync.RWMutex
	runs map[string]RunRecord
}

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{runs: make(map[string]RunRecord)}
}

// SaveRun implements Archive.
func (m *MemoryArchive) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[rec.RunID] = rec
	return nil
}

// LoadRun implements Archive.
func (m *MemoryArchive) LoadRun(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListRuns implements Archive.
func (m *MemoryArchive) ListRuns(_ context.Context, limit int) ([]RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunRecord, 0, len(m.runs))
	for _, rec := range m.runs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements Archive.
func (m *MemoryArchive) Close() error { return nil }
