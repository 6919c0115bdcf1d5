package dbexec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/querylab/biflow/graph"
)

// SQLExecutor runs queries against a database/sql pool. It is built for
// MySQL but works with any driver that returns textual column values.
type SQLExecutor struct {
	db      *sql.DB
	maxRows int
}

// DefaultMaxRows caps a result set so a runaway query cannot exhaust
// memory; excess rows are dropped silently.
const DefaultMaxRows = 1000

// NewSQLExecutor wraps an open pool. maxRows of zero or below means
// DefaultMaxRows.
func NewSQLExecutor(db *sql.DB, maxRows int) *SQLExecutor {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &SQLExecutor{db: db, maxRows: maxRows}
}

// Open connects to MySQL with the given DSN and verifies the connection.
func Open(dsn string) (*SQLExecutor, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewSQLExecutor(db, 0), nil
}

// Query implements Executor. Driver failures come back as *ExecError with
// the MySQL error number as the code when available.
func (e *SQLExecutor) Query(ctx context.Context, query string) ([]graph.Row, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, wrapErr(err, query)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, wrapErr(err, query)
	}

	out := make([]graph.Row, 0)
	raw := make([]sql.RawBytes, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if len(out) >= e.maxRows {
			break
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, wrapErr(err, query)
		}
		row := make(graph.Row, len(cols))
		for i, col := range cols {
			if raw[i] == nil {
				row[col] = nil
			} else {
				row[col] = string(raw[i])
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err, query)
	}
	return out, nil
}

func wrapErr(err error, query string) *ExecError {
	execErr := &ExecError{Message: err.Error(), Query: query, cause: err}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		execErr.Code = fmt.Sprintf("%d", myErr.Number)
		execErr.Message = myErr.Message
	}
	return execErr
}
