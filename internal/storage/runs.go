package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// Run is one recorded batch run.
type Run struct {
	ID         string
	Kind       models.Kind
	Status     string // running, complete, partial, failed
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Entities   int
	Reports    int
	Skipped    int
	Error      string
}

// RunStatusRunning marks a run that has not finished.
const RunStatusRunning = "running"

// BeginRun records the start of run.
func (s *Storage) BeginRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		return fmt.Errorf("run ID must not be empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), RunStatusRunning, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	run.Status = RunStatusRunning
	return nil
}

// FinishRun records the outcome of a run started with BeginRun.
func (s *Storage) FinishRun(ctx context.Context, run *Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, finished_at = ?, entities = ?, reports = ?, skipped = ?, error = ?
		WHERE id = ?`,
		run.Status, run.FinishedAt.UnixMilli(), run.Entities, run.Reports, run.Skipped, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", run.ID, ErrRunNotFound)
	}
	return nil
}

// GetRun returns the recorded run with id.
func (s *Storage) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run      Run
		kind     string
		started  int64
		finished sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, status, started_at, finished_at, entities, reports, skipped, error
		FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &kind, &run.Status, &started, &finished, &run.Entities, &run.Reports, &run.Skipped, &run.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	run.Kind = models.Kind(kind)
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return &run, nil
}

// AcquireLease takes the named lease for holder until now+ttl. The lease is
// granted when it is free, expired, or already held by holder; otherwise
// ErrLeaseHeld is returned.
func (s *Storage) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration, now time.Time) error {
	if name == "" || holder == "" {
		return fmt.Errorf("lease name and holder must not be empty")
	}
	if ttl <= 0 {
		return fmt.Errorf("lease TTL must be positive")
	}

	nowMs := now.UnixMilli()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO run_leases (name, holder, acquired_at, expires_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			holder      = excluded.holder,
			acquired_at = excluded.acquired_at,
			expires_at  = excluded.expires_at
		WHERE run_leases.expires_at <= ? OR run_leases.holder = excluded.holder`,
		name, holder, nowMs, now.Add(ttl).UnixMilli(), nowMs)
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	if n == 0 {
		var current string
		var expires int64
		if err := s.db.QueryRowContext(ctx,
			`SELECT holder, expires_at FROM run_leases WHERE name = ?`, name).Scan(&current, &expires); err != nil {
			return fmt.Errorf("lease %s: %w", name, ErrLeaseHeld)
		}
		return fmt.Errorf("lease %s held by %s until %s: %w",
			name, current, time.UnixMilli(expires).UTC().Format(time.RFC3339), ErrLeaseHeld)
	}
	return nil
}

// ReleaseLease frees the named lease if holder owns it.
func (s *Storage) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM run_leases WHERE name = ? AND holder = ?`, name, holder); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
