package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path string
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// CreateRun creates a new run record, stamping creation time when the
// caller left it unset.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	query := `
		INSERT INTO runs (id, project, kind, status, started_at, completed_at, error, log_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Project,
		run.Kind,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.LogPath,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, project, kind, status, started_at, completed_at, error, log_path, created_at, updated_at
		FROM runs
		WHERE id = ?
	`

	run := &Run{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Project,
		&run.Kind,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.LogPath,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// UpdateRunStatus updates the status of a run, stamping completion time on
// terminal statuses.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id string, status RunStatus, errMsg *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	var completedAt *time.Time
	if status != RunStatusRunning {
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, errMsg, completedAt, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// ListRuns lists runs, newest first, optionally filtered by project.
func (s *SQLiteStore) ListRuns(ctx context.Context, project string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, project, kind, status, started_at, completed_at, error, log_path, created_at, updated_at
		FROM runs
	`
	args := []interface{}{}
	if project != "" {
		query += " WHERE project = ?"
		args = append(args, project)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		if err := rows.Scan(
			&run.ID,
			&run.Project,
			&run.Kind,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.LogPath,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SaveSteps persists the final step records for a run in plan order.
func (s *SQLiteStore) SaveSteps(ctx context.Context, runID string, steps []RunStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO run_steps (run_id, position, name, status, detail, retries, started_at, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, query,
			runID, step.Position, step.Name, step.Status, step.Detail, step.Retries, step.StartedAt, step.ElapsedMS,
		); err != nil {
			return fmt.Errorf("failed to save step %q: %w", step.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit steps: %w", err)
	}
	return nil
}

// ListSteps retrieves the step records for a run in plan order.
func (s *SQLiteStore) ListSteps(ctx context.Context, runID string) ([]*RunStep, error) {
	query := `
		SELECT id, run_id, position, name, status, detail, retries, started_at, elapsed_ms
		FROM run_steps
		WHERE run_id = ?
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var out []*RunStep
	for rows.Next() {
		st := &RunStep{}
		if err := rows.Scan(
			&st.ID, &st.RunID, &st.Position, &st.Name, &st.Status,
			&st.Detail, &st.Retries, &st.StartedAt, &st.ElapsedMS,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertDeployment inserts or replaces the deployment summary for a project.
// Timestamps are stamped here; on conflict the original created_at survives
// because the update clause never touches it.
func (s *SQLiteStore) UpsertDeployment(ctx context.Context, rec *DeploymentRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `
		INSERT INTO deployments (project, run_id, kind, group_name, registry_server, app_url, database_fqdn, image, elapsed_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project) DO UPDATE SET
			run_id = excluded.run_id,
			kind = excluded.kind,
			group_name = excluded.group_name,
			registry_server = excluded.registry_server,
			app_url = excluded.app_url,
			database_fqdn = excluded.database_fqdn,
			image = excluded.image,
			elapsed_ms = excluded.elapsed_ms,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Project, rec.RunID, rec.Kind, rec.GroupName, rec.RegistryServer,
		rec.AppURL, rec.DatabaseFQDN, rec.Image, rec.ElapsedMS,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deployment: %w", err)
	}
	return nil
}

// GetDeployment retrieves the deployment summary for a project.
func (s *SQLiteStore) GetDeployment(ctx context.Context, project string) (*DeploymentRecord, error) {
	query := `
		SELECT project, run_id, kind, group_name, registry_server, app_url, database_fqdn, image, elapsed_ms, created_at, updated_at
		FROM deployments
		WHERE project = ?
	`

	rec := &DeploymentRecord{}
	err := s.db.QueryRowContext(ctx, query, project).Scan(
		&rec.Project, &rec.RunID, &rec.Kind, &rec.GroupName, &rec.RegistryServer,
		&rec.AppURL, &rec.DatabaseFQDN, &rec.Image, &rec.ElapsedMS,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w for project: %s", ErrDeploymentNotFound, project)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return rec, nil
}

// HealthCheck verifies the database connection.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
