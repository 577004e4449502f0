// Package storage provides the SQLite ledger behind a batch run.
// It persists report summaries authoritatively, records run history and
// holds the lease that keeps two runs from writing the same output location.
//
// The schema is managed by embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/rewired-gh/pulsereport/internal/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrLeaseHeld is returned when another holder owns an unexpired lease.
var ErrLeaseHeld = errors.New("run lease is held by another process")

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// MemoryPath opens a private in-memory ledger.
const MemoryPath = ":memory:"

// Storage is the ledger handle. It is safe for concurrent use.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path and applies pending
// migrations.
func Open(path string) (*Storage, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path must not be empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One connection: an in-memory database is private to its connection,
	// and SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure ledger: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Storage{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	// m.Close would close db as well.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// UpsertSummaries records the summaries of freshly built reports.
// Rows are keyed by (surrogate key, date); re-running a day replaces its row.
func (s *Storage) UpsertSummaries(ctx context.Context, runID string, reports []models.Report) error {
	if len(reports) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_summaries (
			surrogate_key, date, kind, entity_id, entity_key, name, filename,
			start_date, end_date, event_count, unique_actors, run_id, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (surrogate_key, date) DO UPDATE SET
			entity_key    = excluded.entity_key,
			name          = excluded.name,
			filename      = excluded.filename,
			start_date    = excluded.start_date,
			end_date      = excluded.end_date,
			event_count   = excluded.event_count,
			unique_actors = excluded.unique_actors,
			run_id        = excluded.run_id,
			updated_at    = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i := range reports {
		r := &reports[i]
		if r.SurrogateKey == "" {
			return fmt.Errorf("report %s has no surrogate key", r.Filename)
		}
		sum := r.Summary()
		if _, err := stmt.ExecContext(ctx,
			r.SurrogateKey, sum.Date, string(r.Kind), r.EntityID, r.Key, r.Name, sum.Filename,
			sum.StartDate, sum.EndDate, sum.EventCount, sum.UniqueActors, runID, r.GeneratedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("upsert summary %s: %w", sum.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summaries: %w", err)
	}
	return nil
}

// Summaries returns every recorded summary of kind keyed by entity id,
// newest date first.
func (s *Storage) Summaries(ctx context.Context, kind models.Kind) (map[string][]models.ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, date, filename, start_date, end_date, event_count, unique_actors
		FROM report_summaries
		WHERE kind = ?
		ORDER BY entity_id, date DESC, filename DESC`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.ReportSummary)
	for rows.Next() {
		var id string
		var sum models.ReportSummary
		if err := rows.Scan(&id, &sum.Date, &sum.Filename, &sum.StartDate, &sum.EndDate, &sum.EventCount, &sum.UniqueActors); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out[id] = append(out[id], sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return out, nil
}
