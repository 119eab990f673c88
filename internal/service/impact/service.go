package impact

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"printfarm/internal/storage"
)

type SnapshotStore interface {
	GetSettings(ctx context.Context) (storage.FactorySettings, error)
	GetProjects(ctx context.Context) ([]storage.Project, error)
	GetProducts(ctx context.Context) ([]storage.Product, error)
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
}

// Service runs the analyzer against the current state of the farm.
type Service struct {
	analyzer *Analyzer
	store    SnapshotStore
	loc      *time.Location
	now      func() time.Time
}

func NewService(analyzer *Analyzer, store SnapshotStore, loc *time.Location) *Service {
	return &Service{analyzer: analyzer, store: store, loc: loc, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) AnalyzeFailure(ctx context.Context, ev FailureEvent) (Analysis, error) {
	const op = "impact.AnalyzeFailure"

	snap, err := LoadSnapshot(ctx, s.store)
	if err != nil {
		return Analysis{}, fmt.Errorf("%s: %w", op, err)
	}
	snap.Now = s.now()
	snap.Location = s.loc
	return s.analyzer.Analyze(snap, ev)
}

// LoadSnapshot reads every collection the simulations need in parallel.
func LoadSnapshot(ctx context.Context, store SnapshotStore) (Snapshot, error) {
	var snap Snapshot

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Settings, err = store.GetSettings(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Projects, err = store.GetProjects(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Products, err = store.GetProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Printers, err = store.GetPrinters(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Cycles, err = store.GetCycles(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
