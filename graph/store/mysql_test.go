package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockArchive(t *testing.T) (*MySQLArchive, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	mock.ExpectPing()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(sqlmock.NewResult(0, 0))
	a, err := NewMySQLArchive(db)
	if err != nil {
		t.Fatalf("NewMySQLArchive: %v", err)
	}
	return a, mock
}

func TestMySQLArchiveSaveRun(t *testing.T) {
	a, mock := newMockArchive(t)
	defer a.Close()

	now := time.Now()
	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "top products", "succeeded", "completed",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	if err := a.SaveRun(context.Background(), sampleRecord("run-1", now)); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	a.Close()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLArchiveLoadRun(t *testing.T) {
	a, mock := newMockArchive(t)
	defer a.Close()

	now := time.Now()
	steps, _ := json.Marshal([]StepEntry{{Step: 1, NodeID: "intent", Outcome: "ok"}})
	rows := sqlmock.NewRows([]string{
		"run_id", "question", "outcome", "reason", "steps_json", "final_state", "started_at", "finished_at",
	}).AddRow("run-1", "top products", "succeeded", "completed", string(steps), `{"terminated":true}`, now, now)

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(rows)

	rec, err := a.LoadRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LoadRun: %v", err)
	}
	if rec.Question != "top products" || len(rec.Steps) != 1 {
		t.Errorf("record = %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLArchiveLoadRunNotFound(t *testing.T) {
	a, mock := newMockArchive(t)
	defer a.Close()

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE run_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"run_id", "question", "outcome", "reason", "steps_json", "final_state", "started_at", "finished_at",
		}))

	if _, err := a.LoadRun(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("LoadRun = %v, want ErrNotFound", err)
	}
}

func TestMySQLArchiveListRuns(t *testing.T) {
	a, mock := newMockArchive(t)
	defer a.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"run_id", "question", "outcome", "reason", "steps_json", "final_state", "started_at", "finished_at",
	}).
		AddRow("run-2", "q2", "succeeded", "completed", "[]", "{}", now, now.Add(time.Minute)).
		AddRow("run-1", "q1", "failed", "cancelled", "[]", "{}", now, now)

	mock.ExpectQuery("SELECT (.+) FROM runs ORDER BY finished_at DESC LIMIT").
		WithArgs(10).
		WillReturnRows(rows)

	runs, err := a.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-2" {
		t.Errorf("runs = %+v", runs)
	}
}
