// Package history records build runs and their per-file outcomes in a
// local SQLite database so past runs can be inspected after the fact.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is a single recorded build run.
type Run struct {
	ID             string
	Target         string
	Toolchain      string
	StartedAt      time.Time
	FinishedAt     time.Time
	Outcome        string
	Succeeded      int
	Failed         int
	MissingModules int
	Skipped        int
}

// UnitRecord is the outcome of one source file within a run.
type UnitRecord struct {
	RunID      string
	Path       string
	Status     string
	Detail     string
	RecordedAt time.Time
}

// Store persists runs and unit outcomes.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the history database at path. Use ":memory:"
// for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		toolchain TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		outcome TEXT,
		succeeded INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		missing_modules INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		path TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT,
		recorded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_units_run_id ON units(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, id, target, toolchain string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, target, toolchain, started_at) VALUES (?, ?, ?, ?)",
		id, target, toolchain, startedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordUnit records the outcome of one source file within a run.
func (s *Store) RecordUnit(ctx context.Context, runID, path, status, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO units (run_id, path, status, detail, recorded_at) VALUES (?, ?, ?, ?, ?)",
		runID, path, status, detail, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert unit record: %w", err)
	}
	return nil
}

// FinishRun records the final outcome and counters of a run.
func (s *Store) FinishRun(ctx context.Context, id, outcome string, finishedAt time.Time, succeeded, failed, missing, skipped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, outcome = ?, succeeded = ?, failed = ?, missing_modules = ?, skipped = ? WHERE run_id = ?",
		finishedAt.Unix(), outcome, succeeded, failed, missing, skipped, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown run %s", id)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, target, toolchain, started_at, COALESCE(finished_at, 0), COALESCE(outcome, ''),
		        succeeded, failed, missing_modules, skipped
		 FROM runs ORDER BY started_at DESC, run_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Target, &r.Toolchain, &started, &finished,
			&r.Outcome, &r.Succeeded, &r.Failed, &r.MissingModules, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(started, 0)
		if finished > 0 {
			r.FinishedAt = time.Unix(finished, 0)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// UnitsForRun returns all unit records of a run in insertion order.
func (s *Store) UnitsForRun(ctx context.Context, runID string) ([]UnitRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, path, status, COALESCE(detail, ''), recorded_at FROM units WHERE run_id = ? ORDER BY id",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query unit records: %w", err)
	}
	defer rows.Close()

	var units []UnitRecord
	for rows.Next() {
		var u UnitRecord
		var recorded int64
		if err := rows.Scan(&u.RunID, &u.Path, &u.Status, &u.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("scan unit record: %w", err)
		}
		u.RecordedAt = time.Unix(recorded, 0)
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit records: %w", err)
	}
	return units, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
