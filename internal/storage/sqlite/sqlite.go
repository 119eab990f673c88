package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"printfarm/internal/storage"
)

const dayMarkerKey = "last_day"

// Storage is the local authoritative collection store. It survives without the shared backend.
type Storage struct {
	db *sql.DB
}

// New opens (or creates) the database at path and runs migrations. ":memory:" is accepted.
func New(path string) (*Storage, error) {
	const op = "storage.sqlite.New"

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("%s: create dir: %w", op, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", op, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", op, err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	version := 0
	// missing table on a fresh file leaves version at 0
	_ = s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS collections (
				name       TEXT PRIMARY KEY,
				version    INTEGER NOT NULL,
				payload    TEXT NOT NULL,
				updated_at TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("v1: %w", err)
		}
	}

	if version < 2 {
		_, err := s.db.Exec(`
			CREATE TABLE IF NOT EXISTS local_state (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);

			INSERT OR IGNORE INTO schema_version (version) VALUES (2);
		`)
		if err != nil {
			return fmt.Errorf("v2: %w", err)
		}
	}

	return nil
}

// LoadCollection returns the raw payload and the schema version it was written with.
func (s *Storage) LoadCollection(ctx context.Context, name string) ([]byte, int, error) {
	const op = "storage.sqlite.LoadCollection"

	var (
		payload string
		version int
	)
	err := s.db.QueryRowContext(ctx, "SELECT payload, version FROM collections WHERE name = ?", name).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%s: %s: %w", op, name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return []byte(payload), version, nil
}

func (s *Storage) SaveCollection(ctx context.Context, name string, version int, payload []byte) error {
	const op = "storage.sqlite.SaveCollection"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (name, version, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET version = excluded.version, payload = excluded.payload, updated_at = excluded.updated_at
	`, name, version, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return nil
}

// LastDay returns the locally recorded planning day, "" when none.
func (s *Storage) LastDay(ctx context.Context) (string, error) {
	const op = "storage.sqlite.LastDay"

	var day string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM local_state WHERE key = ?", dayMarkerKey).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return day, nil
}

func (s *Storage) SetLastDay(ctx context.Context, day string) error {
	const op = "storage.sqlite.SetLastDay"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO local_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, dayMarkerKey, day)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
