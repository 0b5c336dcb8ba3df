// Package runlog records pipeline runs in Postgres.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a run ID is unknown.
var ErrNotFound = errors.New("run not found")

// Status is the lifecycle state of a run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one ledger row.
type Run struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       Status     `json:"status"`
	Folder       string     `json:"folder,omitempty"`
	EngineFile   string     `json:"engine_file,omitempty"`
	RowsIngested int        `json:"rows_ingested"`
	RowsSkipped  int        `json:"rows_skipped"`
	Rate         float64    `json:"rate"`
	Error        string     `json:"error,omitempty"`
}

// Ledger stores run records.
type Ledger interface {
	Start(ctx context.Context, run Run) error
	Finish(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (*Run, error)
	Recent(ctx context.Context, limit int) ([]Run, error)
}

// Open connects to Postgres with lib/pq.
func Open(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// PostgresLedger implements Ledger against the retro_runs table.
type PostgresLedger struct{ db *sql.DB }

// NewPostgresLedger wraps an open database.
func NewPostgresLedger(db *sql.DB) *PostgresLedger { return &PostgresLedger{db: db} }

const schema = `
CREATE TABLE IF NOT EXISTS retro_runs (
	id            UUID PRIMARY KEY,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	folder        TEXT NOT NULL DEFAULT '',
	engine_file   TEXT NOT NULL DEFAULT '',
	rows_ingested INTEGER NOT NULL DEFAULT 0,
	rows_skipped  INTEGER NOT NULL DEFAULT 0,
	rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT ''
)`

// EnsureSchema creates the table if needed.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure retro_runs: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Start(ctx context.Context, run Run) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO retro_runs (id, started_at, status, folder)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.StartedAt, string(run.Status), run.Folder)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Finish(ctx context.Context, run Run) error {
	res, err := l.db.ExecContext(ctx, `
		UPDATE retro_runs
		SET finished_at = $2, status = $3, folder = $4, engine_file = $5,
		    rows_ingested = $6, rows_skipped = $7, rate = $8, error = $9
		WHERE id = $1
	`, run.ID, run.FinishedAt, string(run.Status), run.Folder, run.EngineFile,
		run.RowsIngested, run.RowsSkipped, run.Rate, run.Error)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectRun = `
		SELECT id, started_at, finished_at, status, folder, engine_file,
		       rows_ingested, rows_skipped, rate, error
		FROM retro_runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		finished sql.NullTime
		status   string
	)
	err := s.Scan(&r.ID, &r.StartedAt, &finished, &status, &r.Folder, &r.EngineFile,
		&r.RowsIngested, &r.RowsSkipped, &r.Rate, &r.Error)
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(l.db.QueryRowContext(ctx, selectRun+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

func (l *PostgresLedger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, selectRun+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Nop discards records; used when no database is configured.
type Nop struct{}

func (Nop) Start(context.Context, Run) error           { return nil }
func (Nop) Finish(context.Context, Run) error          { return nil }
func (Nop) Get(context.Context, string) (*Run, error)  { return nil, ErrNotFound }
func (Nop) Recent(context.Context, int) ([]Run, error) { return nil, nil }
