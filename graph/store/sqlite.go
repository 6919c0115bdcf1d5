package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteArchive stores run records in a single-file SQLite database.
// Zero-setup persistence for development and single-process deployments;
// WAL mode keeps reads concurrent with the archive writes.
//
// Use ":memory:" as the path for a throwaway database in tests.
type SQLiteArchive struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	question     TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	steps_json   TEXT NOT NULL,
	final_state  TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	finished_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at DESC);
`

// NewSQLiteArchive opens (creating if needed) the database at path and
// migrates the schema.
func NewSQLiteArchive(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite archive: %w", err)
	}
	// SQLite allows a single writer; keep one connection to avoid
	// SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite archive: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite archive: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

// SaveRun implements Archive.
func (s *SQLiteArchive) SaveRun(ctx context.Context, rec RunRecord) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			question = excluded.question,
			outcome = excluded.outcome,
			reason = excluded.reason,
			steps_json = excluded.steps_json,
			final_state = excluded.final_state,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`,
		rec.RunID, rec.Question, rec.Outcome, rec.Reason,
		string(steps), string(rec.FinalState), rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// LoadRun implements Archive.
func (s *SQLiteArchive) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

// ListRuns implements Archive.
func (s *SQLiteArchive) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at
		FROM runs ORDER BY finished_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close implements Archive.
func (s *SQLiteArchive) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var steps, finalState string
	err := row.Scan(&rec.RunID, &rec.Question, &rec.Outcome, &rec.Reason,
		&steps, &finalState, &rec.StartedAt, &rec.FinishedAt)
	if err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(steps), &rec.Steps); err != nil {
		return RunRecord{}, fmt.Errorf("decode steps for %s: %w", rec.RunID, err)
	}
	rec.FinalState = json.RawMessage(finalState)
	return rec, nil
}
