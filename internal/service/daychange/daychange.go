package daychange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"printfarm/internal/service/planning"
	"printfarm/internal/storage"
)

type LockStatus = storage.DayLockStatus

const (
	AlreadyCurrent = storage.DayAlreadyCurrent
	Lost           = storage.DayLost
	Acquired       = storage.DayAcquired
)

// DistributedLock arbitrates which device advances a workspace to a new day.
type DistributedLock interface {
	TryAcquire(ctx context.Context, workspaceID, day string) (LockStatus, error)
	Confirm(ctx context.Context, workspaceID, day string) error
	// Release rolls the pending marker back to null so any device can acquire again.
	Release(ctx context.Context, workspaceID string) error
}

// LocalMarker is the offline fallback: the last day this device replanned for.
type LocalMarker interface {
	LastDay(ctx context.Context) (string, error)
	SetLastDay(ctx context.Context, day string) error
}

type Replanner interface {
	RunNow(ctx context.Context, scope planning.Scope, lockInProgress bool, reason string) (planning.RecalcResult, error)
}

type Outcome string

const (
	OutcomeAlreadyCurrent Outcome = "already_current"
	OutcomeLost           Outcome = "lost"
	OutcomeReplanned      Outcome = "replanned"
	OutcomeRolledBack     Outcome = "rolled_back"
	OutcomeLocalReplanned Outcome = "local_replanned"
	OutcomeFailed         Outcome = "failed"
)

const reason = "day_change"

type Detector struct {
	log         *slog.Logger
	lock        DistributedLock
	local       LocalMarker
	replanner   Replanner
	workspaceID string
	loc         *time.Location
	now         func() time.Time
}

// New builds a detector. lock may be nil when no shared backend is configured.
func New(log *slog.Logger, lock DistributedLock, local LocalMarker, replanner Replanner, workspaceID string, loc *time.Location) *Detector {
	if loc == nil {
		loc = time.Local
	}
	return &Detector{
		log:         log,
		lock:        lock,
		local:       local,
		replanner:   replanner,
		workspaceID: workspaceID,
		loc:         loc,
		now:         time.Now,
	}
}

func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

func (d *Detector) today() string {
	return d.now().In(d.loc).Format(storage.DateLayout)
}

// Check advances the workspace to today if needed. The day is confirmed only after a successful replan;
// a failed replan releases the marker so another attempt can take it. Contention on the lock means
// another device holds it; only an unreachable lock falls back to the local marker.
func (d *Detector) Check(ctx context.Context) (Outcome, error) {
	const op = "daychange.Check"
	log := d.log.With(slog.String("op", op), slog.String("workspace_id", d.workspaceID))
	today := d.today()

	if d.lock != nil {
		status, err := d.lock.TryAcquire(ctx, d.workspaceID, today)
		if err == nil {
			return d.handleStatus(ctx, log, status, today)
		}
		if errors.Is(err, storage.ErrDayLockContention) {
			return d.handleStatus(ctx, log, Lost, today)
		}
		log.Warn("day lock unavailable, using local marker", slog.String("error", err.Error()))
	}

	return d.checkLocal(ctx, log, today)
}

func (d *Detector) handleStatus(ctx context.Context, log *slog.Logger, status LockStatus, today string) (Outcome, error) {
	const op = "daychange.handleStatus"

	switch status {
	case AlreadyCurrent:
		d.markLocal(ctx, log, today)
		return OutcomeAlreadyCurrent, nil
	case Lost:
		log.Info("another device is advancing the day", slog.String("day", today))
		d.markLocal(ctx, log, today)
		return OutcomeLost, nil
	case Acquired:
	default:
		return OutcomeFailed, fmt.Errorf("%s: unexpected lock status %q", op, status)
	}

	log.Info("day lock acquired, replanning", slog.String("day", today))
	if _, err := d.replanner.RunNow(ctx, planning.ScopeFromNow, true, reason); err != nil {
		log.Error("day change replan failed, rolling back", slog.String("error", err.Error()))
		if rerr := d.lock.Release(ctx, d.workspaceID); rerr != nil {
			log.Error("failed to roll back day marker", slog.String("error", rerr.Error()))
		}
		return OutcomeRolledBack, fmt.Errorf("%s: replan: %w", op, err)
	}

	if err := d.lock.Confirm(ctx, d.workspaceID, today); err != nil {
		// The plan is already regenerated, the next check will see a stale pending marker and retry.
		log.Warn("failed to confirm day", slog.String("error", err.Error()))
	}
	d.markLocal(ctx, log, today)
	return OutcomeReplanned, nil
}

func (d *Detector) checkLocal(ctx context.Context, log *slog.Logger, today string) (Outcome, error) {
	const op = "daychange.checkLocal"

	last, err := d.local.LastDay(ctx)
	if err != nil {
		log.Warn("failed to read local day marker", slog.String("error", err.Error()))
	}
	if last == today {
		return OutcomeAlreadyCurrent, nil
	}

	if _, err := d.replanner.RunNow(ctx, planning.ScopeFromNow, true, reason); err != nil {
		return OutcomeFailed, fmt.Errorf("%s: replan: %w", op, err)
	}
	d.markLocal(ctx, log, today)
	return OutcomeLocalReplanned, nil
}

func (d *Detector) markLocal(ctx context.Context, log *slog.Logger, today string) {
	if err := d.local.SetLastDay(ctx, today); err != nil {
		log.Warn("failed to store local day marker", slog.String("error", err.Error()))
	}
}

// Run checks immediately and then on every tick until ctx is done.
func (d *Detector) Run(ctx context.Context, interval time.Duration) {
	const op = "daychange.Run"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if outcome, err := d.Check(ctx); err != nil {
			d.log.Error("day change check failed", slog.String("op", op), slog.String("outcome", string(outcome)), slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
