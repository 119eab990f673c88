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

// A pending claim older than this is treated as abandoned by a crashed device.
const pendingClaimTTL = 10 * time.Minute

const errDeadlock = 1213

var ErrLockContention = storage.ErrDayLockContention

// TryAcquire claims day for the workspace. Exactly one caller per day sees DayAcquired.
func (s *Storage) TryAcquire(ctx context.Context, workspaceID, day string) (storage.DayLockStatus, error) {
	const op = "storage.mysql.TryAcquire"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: begin transaction: %w", op, err)
	}
	defer tx.Rollback()

	var (
		current, pending sql.NullString
		updatedAt        time.Time
	)
	err = tx.QueryRowContext(ctx,
		"SELECT current_day, pending_day, updated_at FROM farm_day_markers WHERE workspace_id = ? FOR UPDATE",
		workspaceID,
	).Scan(&current, &pending, &updatedAt)

	now := time.Now().UTC()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			"INSERT INTO farm_day_markers (workspace_id, current_day, pending_day, updated_at) VALUES (?, NULL, ?, ?)",
			workspaceID, day, now,
		)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, mapLockErr(err))
		}
	case err != nil:
		return "", fmt.Errorf("%s: select marker: %w", op, mapLockErr(err))
	default:
		if current.Valid && current.String == day {
			return storage.DayAlreadyCurrent, nil
		}
		if pending.Valid && pending.String == day && now.Sub(updatedAt) < pendingClaimTTL {
			return storage.DayLost, nil
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE farm_day_markers SET pending_day = ?, updated_at = ? WHERE workspace_id = ?",
			day, now, workspaceID,
		)
		if err != nil {
			return "", fmt.Errorf("%s: set pending: %w", op, mapLockErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: commit: %w", op, mapLockErr(err))
	}
	return storage.DayAcquired, nil
}

// Confirm promotes the pending day to current after a successful replan.
func (s *Storage) Confirm(ctx context.Context, workspaceID, day string) error {
	const op = "storage.mysql.Confirm"

	_, err := s.db.ExecContext(ctx,
		"UPDATE farm_day_markers SET current_day = ?, pending_day = NULL, updated_at = ? WHERE workspace_id = ?",
		day, time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Storage) Release(ctx context.Context, workspaceID string) error {
	const op = "storage.mysql.Release"

	_, err := s.db.ExecContext(ctx,
		"UPDATE farm_day_markers SET pending_day = NULL, updated_at = ? WHERE workspace_id = ?",
		time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func mapLockErr(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDeadlock {
		return fmt.Errorf("%w: %v", ErrLockContention, err)
	}
	return err
}
