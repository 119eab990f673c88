package feasibility

import (
	"context"
	"fmt"
	"time"

	"printfarm/internal/service/impact"
)

// Service checks proposals against the current plan.
type Service struct {
	checker *Checker
	store   impact.SnapshotStore
	loc     *time.Location
	now     func() time.Time
}

func NewService(checker *Checker, store impact.SnapshotStore, loc *time.Location) *Service {
	return &Service{checker: checker, store: store, loc: loc, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) CheckProposal(ctx context.Context, p Proposal) (Result, error) {
	const op = "feasibility.CheckProposal"

	snap, err := impact.LoadSnapshot(ctx, s.store)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	return s.checker.Check(Snapshot{
		Now:      s.now(),
		Location: s.loc,
		Settings: snap.Settings,
		Projects: snap.Projects,
		Products: snap.Products,
		Printers: snap.Printers,
		Cycles:   snap.Cycles,
	}, p)
}
