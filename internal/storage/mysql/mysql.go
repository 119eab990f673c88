package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"printfarm/internal/storage"
)

// Storage is the shared workspace backend: a mirror of the local collections plus the day-change lock.
type Storage struct {
	db          *sql.DB
	workspaceID string
}

func New(dsn, workspaceID string) (*Storage, error) {
	const op = "storage.mysql.New"

	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", op, err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	s := &Storage{db: db, workspaceID: workspaceID}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	const op = "storage.mysql.ensureSchema"

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS farm_collections (
			workspace_id VARCHAR(64) NOT NULL,
			name         VARCHAR(64) NOT NULL,
			version      INT NOT NULL,
			payload      LONGTEXT NOT NULL,
			updated_at   DATETIME(3) NOT NULL,
			PRIMARY KEY (workspace_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS farm_day_markers (
			workspace_id VARCHAR(64) NOT NULL PRIMARY KEY,
			current_day  VARCHAR(10) NULL,
			pending_day  VARCHAR(10) NULL,
			updated_at   DATETIME(3) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (s *Storage) LoadCollection(ctx context.Context, name string) ([]byte, int, error) {
	const op = "storage.mysql.LoadCollection"

	var (
		payload string
		version int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT payload, version FROM farm_collections WHERE workspace_id = ? AND name = ?",
		s.workspaceID, name,
	).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%s: %s: %w", op, name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return []byte(payload), version, nil
}

func (s *Storage) SaveCollection(ctx context.Context, name string, version int, payload []byte) error {
	const op = "storage.mysql.SaveCollection"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO farm_collections (workspace_id, name, version, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			version = VALUES(version),
			payload = VALUES(payload),
			updated_at = VALUES(updated_at)
	`, s.workspaceID, name, version, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, name, err)
	}
	return nil
}
