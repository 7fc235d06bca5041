package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openstrata/strata/pkg/graph"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance, filling unset
// connection-pool settings with defaults.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	return &SQLiteStore{cfg: cfg}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

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

// GetItem retrieves a metadata item by name.
func (s *SQLiteStore) GetItem(ctx context.Context, name string) (*MetadataItem, error) {
	query := `
		SELECT name, size, content_type, last_modified, updated_at
		FROM metadata_items
		WHERE name = ?
	`

	item := &MetadataItem{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&item.Name,
		&item.Size,
		&item.ContentType,
		&item.LastModified,
		&item.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// PutItem writes a metadata item, replacing any existing record.
func (s *SQLiteStore) PutItem(ctx context.Context, item *MetadataItem) error {
	query := `
		INSERT INTO metadata_items (name, size, content_type, last_modified, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			size = excluded.size,
			content_type = excluded.content_type,
			last_modified = excluded.last_modified,
			updated_at = excluded.updated_at
	`

	updatedAt := item.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, query,
		item.Name,
		item.Size,
		item.ContentType,
		item.LastModified,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}

	return nil
}

// PutQuarantine appends a quarantine record.
func (s *SQLiteStore) PutQuarantine(ctx context.Context, rec *QuarantineRecord) error {
	query := `
		INSERT INTO quarantine_records (id, payload, error, attempt_count, first_seen_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		string(rec.Payload),
		rec.Error,
		rec.AttemptCount,
		rec.FirstSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put quarantine record: %w", err)
	}

	return nil
}

// GetQuarantine retrieves a quarantine record by ID.
func (s *SQLiteStore) GetQuarantine(ctx context.Context, id string) (*QuarantineRecord, error) {
	query := `
		SELECT id, payload, error, attempt_count, first_seen_at
		FROM quarantine_records
		WHERE id = ?
	`

	rec := &QuarantineRecord{}
	var payload string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID,
		&payload,
		&rec.Error,
		&rec.AttemptCount,
		&rec.FirstSeenAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("quarantine record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quarantine record: %w", err)
	}

	rec.Payload = json.RawMessage(payload)
	return rec, nil
}

// ListQuarantine lists quarantine records, newest first.
func (s *SQLiteStore) ListQuarantine(ctx context.Context, limit, offset int) ([]*QuarantineRecord, error) {
	query := `
		SELECT id, payload, error, attempt_count, first_seen_at
		FROM quarantine_records
		ORDER BY first_seen_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine records: %w", err)
	}
	defer rows.Close()

	records := []*QuarantineRecord{}
	for rows.Next() {
		rec := &QuarantineRecord{}
		var payload string
		if err := rows.Scan(&rec.ID, &payload, &rec.Error, &rec.AttemptCount, &rec.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan quarantine record: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quarantine records: %w", err)
	}

	return records, nil
}

// DeleteQuarantine removes a quarantine record.
func (s *SQLiteStore) DeleteQuarantine(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quarantine_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quarantine record: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("quarantine record %s: %w", id, ErrNotFound)
	}

	return nil
}

// SaveRun persists a completed orchestrator run.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *graph.Run) error {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	query := `
		INSERT INTO runs (id, direction, status, started_at, completed_at, duration_ms, report)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms,
			report = excluded.report
	`

	_, err = s.db.ExecContext(ctx, query,
		run.ID,
		string(run.Direction),
		string(run.Status),
		run.StartedAt,
		run.CompletedAt,
		run.Duration.Milliseconds(),
		string(report),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*graph.Run, error) {
	query := `
		SELECT id, direction, status, started_at, completed_at, duration_ms, report
		FROM runs
		WHERE id = ?
	`

	run := &graph.Run{}
	var durationMs int64
	var report string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Direction,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&durationMs,
		&report,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Duration = time.Duration(durationMs) * time.Millisecond
	if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
	}

	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*graph.Run, error) {
	query := `
		SELECT id, direction, status, started_at, completed_at, duration_ms, report
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*graph.Run{}
	for rows.Next() {
		run := &graph.Run{}
		var durationMs int64
		var report string
		if err := rows.Scan(&run.ID, &run.Direction, &run.Status, &run.StartedAt,
			&run.CompletedAt, &durationMs, &report); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond
		if err := json.Unmarshal([]byte(report), &run.Report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// HealthCheck verifies the database connection is alive.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
