package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLArchive stores run records in MySQL for deployments where several
// processes share one archive. It takes an already-opened *sql.DB so the
// caller controls pooling and credentials.
//
//	db, err := sql.Open("mysql", dsn+"?parseTime=true")
//	...
//	archive, err := store.NewMySQLArchive(db)
//
// The DSN must include parseTime=true so timestamp columns scan into
// time.Time.
type MySQLArchive struct {
	db *sql.DB
}

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       VARCHAR(64) PRIMARY KEY,
	question     TEXT NOT NULL,
	outcome      VARCHAR(32) NOT NULL,
	reason       VARCHAR(64) NOT NULL,
	steps_json   JSON NOT NULL,
	final_state  JSON NOT NULL,
	started_at   TIMESTAMP(6) NOT NULL,
	finished_at  TIMESTAMP(6) NOT NULL,
	INDEX idx_runs_finished_at (finished_at DESC)
)`

// NewMySQLArchive verifies the connection and migrates the schema.
func NewMySQLArchive(db *sql.DB) (*MySQLArchive, error) {
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping mysql archive: %w", err)
	}
	if _, err := db.Exec(mysqlSchema); err != nil {
		return nil, fmt.Errorf("migrate mysql archive: %w", err)
	}
	return &MySQLArchive{db: db}, nil
}

// SaveRun implements Archive.
func (m *MySQLArchive) SaveRun(ctx context.Context, rec RunRecord) error {
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			question = VALUES(question),
			outcome = VALUES(outcome),
			reason = VALUES(reason),
			steps_json = VALUES(steps_json),
			final_state = VALUES(final_state),
			started_at = VALUES(started_at),
			finished_at = VALUES(finished_at)`,
		rec.RunID, rec.Question, rec.Outcome, rec.Reason,
		string(steps), string(rec.FinalState), rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.RunID, err)
	}
	return nil
}

// LoadRun implements Archive.
func (m *MySQLArchive) LoadRun(ctx context.Context, runID string) (RunRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at
		FROM runs WHERE run_id = ?`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return rec, err
}

// ListRuns implements Archive.
func (m *MySQLArchive) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
		SELECT run_id, question, outcome, reason, steps_json, final_state, started_at, finished_at
		FROM runs ORDER BY finished_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
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
func (m *MySQLArchive) Close() error { return m.db.Close() }
