package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Refresh Job Operations
// =============================================================================

// CreateJob inserts a new running job.
func (s *SQLiteStore) CreateJob(ctx context.Context, job *RefreshJob) error {
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = JobStatusRunning
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO refresh_jobs (id, "trigger", sources, status, error, orders_found, started_at, finished_at)
		VALUES (:id, :trigger, :sources, :status, :error, :orders_found, :started_at, :finished_at)
	`, job)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateJob", "refresh_job", job.ID, "job already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateJob", "refresh_job", job.ID, err.Error(), err)
	}
	return nil
}

// FinishJob records the terminal state of a job.
func (s *SQLiteStore) FinishJob(ctx context.Context, id string, status JobStatus, ordersFound int, errMsg string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_jobs
		SET status = ?, orders_found = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, status, ordersFound, errMsg, now, id)
	if err != nil {
		return NewStoreError("FinishJob", "refresh_job", id, err.Error(), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return NewStoreError("FinishJob", "refresh_job", id, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("FinishJob", "refresh_job", id, "job not found", ErrNotFound)
	}
	return nil
}

// GetJob returns one job by ID.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*RefreshJob, error) {
	var job RefreshJob
	err := s.db.GetContext(ctx, &job, `SELECT * FROM refresh_jobs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetJob", "refresh_job", id, "job not found", ErrNotFound)
		}
		return nil, NewStoreError("GetJob", "refresh_job", id, err.Error(), err)
	}
	return &job, nil
}

// ListJobs returns the most recent jobs, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]RefreshJob, error) {
	if limit <= 0 {
		limit = 50
	}
	var jobs []RefreshJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM refresh_jobs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, NewStoreError("ListJobs", "refresh_job", "", err.Error(), err)
	}
	return jobs, nil
}
