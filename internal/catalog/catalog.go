// Package catalog keeps a SQLite-backed history of finalized recordings.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbTimeLayout = "2006-01-02 15:04:05.000"

// ErrNotFound is returned when no recording matches the requested id.
var ErrNotFound = errors.New("catalog: recording not found")

// Recording describes one finalized session.
type Recording struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	Profile   string        `json:"profile"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	SizeBytes int64         `json:"size_bytes"`
	Sources   []string      `json:"sources"`
	// Error is set when the session ended on a write failure.
	Error string `json:"error,omitempty"`
}

// Store provides access to the recordings table.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the catalog database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("catalog: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: open db: %w", err)
	}

	ctx := context.Background()
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("catalog: %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS recordings (
		id          TEXT    PRIMARY KEY,
		path        TEXT    NOT NULL,
		profile     TEXT    NOT NULL DEFAULT '',
		started_at  TEXT    NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0 CHECK(duration_ms >= 0),
		size_bytes  INTEGER NOT NULL DEFAULT 0 CHECK(size_bytes >= 0),
		sources     TEXT    NOT NULL DEFAULT '',
		error       TEXT    NOT NULL DEFAULT '',
		created_at  TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_recordings_started_at ON recordings(started_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Add stores rec. Adding an id twice replaces the earlier row.
func (s *Store) Add(ctx context.Context, rec Recording) error {
	if rec.ID == "" {
		return fmt.Errorf("catalog: add: id is required")
	}
	if rec.Path == "" {
		return fmt.Errorf("catalog: add: path is required")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO recordings (id, path, profile, started_at, duration_ms, size_bytes, sources, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Path, rec.Profile, formatDBTime(rec.StartedAt),
		rec.Duration.Milliseconds(), rec.SizeBytes, strings.Join(rec.Sources, ","), rec.Error)
	if err != nil {
		return fmt.Errorf("catalog: add: %w", err)
	}
	return nil
}

// List returns up to limit recordings, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Recording, error) {
	query := "SELECT id, path, profile, started_at, duration_ms, size_bytes, sources, error FROM recordings ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	recordings := []Recording{}
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, rec)
	}
	return recordings, rows.Err()
}

// Get returns the recording with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Recording, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, path, profile, started_at, duration_ms, size_bytes, sources, error FROM recordings WHERE id = ?", id)
	rec, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Recording{}, ErrNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(row scanner) (Recording, error) {
	var rec Recording
	var startedAt, sources string
	var durationMs int64
	if err := row.Scan(&rec.ID, &rec.Path, &rec.Profile, &startedAt, &durationMs, &rec.SizeBytes, &sources, &rec.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("catalog: scan recording: %w", err)
	}

	parsed, err := parseDBTime(startedAt)
	if err != nil {
		return rec, fmt.Errorf("catalog: scan recording: %w", err)
	}
	rec.StartedAt = parsed
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Sources = []string{}
	if sources != "" {
		rec.Sources = strings.Split(sources, ",")
	}
	return rec, nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}
