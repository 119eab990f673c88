package planning

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"printfarm/internal/events"
	"printfarm/internal/planlog"
	"printfarm/internal/service/material"
	"printfarm/internal/service/readiness"
	"printfarm/internal/storage"
)

// Storage is the subset of the collection store a recalculation reads and writes. The Locker is
// held from the first read to the last write, shared with every other read-modify-write.
type Storage interface {
	sync.Locker
	GetProjects(ctx context.Context) ([]storage.Project, error)
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
	GetProducts(ctx context.Context) ([]storage.Product, error)
	GetSettings(ctx context.Context) (storage.FactorySettings, error)
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
	GetColorInventory(ctx context.Context) ([]storage.ColorInventoryItem, error)
	GetSpools(ctx context.Context) ([]storage.Spool, error)
	SaveCycles(ctx context.Context, cycles []storage.PlannedCycle) error
	SaveProjects(ctx context.Context, projects []storage.Project) error
}

type Publisher interface {
	Publish(topic events.Topic, payload any)
}

type PlanLog interface {
	Append(ctx context.Context, e planlog.Entry)
}

type RecalcResult struct {
	Success             bool            `json:"success"`
	CyclesModified      int             `json:"cycles_modified"`
	CyclesRemoved       int             `json:"cycles_removed"`
	CyclesAutoCompleted int             `json:"cycles_auto_completed"`
	Summary             string          `json:"summary"`
	BlockingIssuesCount int             `json:"blocking_issues_count"`
	BlockingIssues      []BlockingIssue `json:"blocking_issues,omitempty"`
	Warnings            []string        `json:"warnings,omitempty"`
}

type Recalculator struct {
	log         *slog.Logger
	store       Storage
	engine      *Engine
	planLog     PlanLog
	bus         Publisher
	loc         *time.Location
	horizonDays int
	now         func() time.Time
}

func NewRecalculator(log *slog.Logger, store Storage, planLog PlanLog, bus Publisher, loc *time.Location, horizonDays int) *Recalculator {
	if loc == nil {
		loc = time.Local
	}
	return &Recalculator{
		log:         log,
		store:       store,
		engine:      NewEngine(log),
		planLog:     planLog,
		bus:         bus,
		loc:         loc,
		horizonDays: horizonDays,
		now:         time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (r *Recalculator) WithClock(now func() time.Time) *Recalculator {
	r.now = now
	return r
}

type snapshot struct {
	projects  []storage.Project
	printers  []storage.Printer
	products  []storage.Product
	settings  storage.FactorySettings
	cycles    []storage.PlannedCycle
	inventory []storage.ColorInventoryItem
	spools    []storage.Spool
}

func (r *Recalculator) load(ctx context.Context) (*snapshot, error) {
	s := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) { s.projects, err = r.store.GetProjects(gctx); return })
	g.Go(func() (err error) { s.printers, err = r.store.GetPrinters(gctx); return })
	g.Go(func() (err error) { s.products, err = r.store.GetProducts(gctx); return })
	g.Go(func() (err error) { s.settings, err = r.store.GetSettings(gctx); return })
	g.Go(func() (err error) { s.cycles, err = r.store.GetCycles(gctx); return })
	g.Go(func() (err error) { s.inventory, err = r.store.GetColorInventory(gctx); return })
	g.Go(func() (err error) { s.spools, err = r.store.GetSpools(gctx); return })

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s, nil
}

// RecalculatePlan discards regenerable cycles and fills the window again. Errors are returned only for
// storage failures; demand that cannot be placed shows up in BlockingIssues and Warnings.
func (r *Recalculator) RecalculatePlan(ctx context.Context, scope Scope, lockInProgress bool, reason string) (RecalcResult, error) {
	const op = "planning.RecalculatePlan"
	log := r.log.With(slog.String("op", op), slog.String("scope", string(scope)), slog.String("reason", reason))
	started := time.Now()

	entry := planlog.Entry{ID: uuid.NewString(), At: r.now(), Reason: reason, Scope: string(scope)}

	r.store.Lock()
	defer r.store.Unlock()

	snap, err := r.load(ctx)
	if err != nil {
		err = fmt.Errorf("%s: load: %w", op, err)
		r.record(ctx, entry, RecalcResult{}, err, started)
		return RecalcResult{}, err
	}

	now := r.now()
	cycles, stale := CompleteStaleCycles(snap.cycles, now)
	for _, id := range stale {
		log.Warn("auto-completed stale in-progress cycle", slog.String("cycle_id", id))
	}
	cycles, demoted := EnforceSingleInProgress(cycles)
	for _, id := range demoted {
		log.Error("printer had more than one in-progress cycle, demoted", slog.String("cycle_id", id))
	}

	tomorrow, _ := PlanningWindow(ScopeFromTomorrow, now, r.horizonDays, r.loc)
	kept, removed := KeepFilter(cycles, scope, lockInProgress, tomorrow)

	ledger := material.NewLedger(snap.inventory, snap.spools)
	RefreshUrgencies(snap.projects, snap.settings.PriorityRules, now, r.loc)

	plan := r.engine.GeneratePlan(Input{
		Now:         now,
		Scope:       scope,
		HorizonDays: r.horizonDays,
		Projects:    snap.projects,
		Printers:    snap.printers,
		Products:    snap.products,
		Settings:    snap.settings,
		Inventory:   ledger,
		Existing:    kept,
		Location:    r.loc,
	})

	all := append(kept, plan.Cycles...)
	all = readiness.Classify(all, snap.printers, ledger)
	sort.SliceStable(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	readiness.PromoteProjects(snap.projects, all)

	if err := r.store.SaveCycles(ctx, all); err != nil {
		err = fmt.Errorf("%s: save cycles: %w", op, err)
		r.record(ctx, entry, RecalcResult{}, err, started)
		return RecalcResult{}, err
	}
	if err := r.store.SaveProjects(ctx, snap.projects); err != nil {
		err = fmt.Errorf("%s: save projects: %w", op, err)
		r.record(ctx, entry, RecalcResult{}, err, started)
		return RecalcResult{}, err
	}

	res := RecalcResult{
		Success:             true,
		CyclesModified:      len(plan.Cycles),
		CyclesRemoved:       removed,
		CyclesAutoCompleted: len(stale),
		BlockingIssuesCount: len(plan.BlockingIssues),
		BlockingIssues:      plan.BlockingIssues,
		Warnings:            plan.Warnings,
	}
	res.Summary = fmt.Sprintf("%d cycles planned, %d removed, %d blocking issues", res.CyclesModified, res.CyclesRemoved, res.BlockingIssuesCount)

	r.record(ctx, entry, res, nil, started)
	if r.bus != nil {
		r.bus.Publish(events.CyclesSynced, res)
	}

	log.Info("plan recalculated",
		slog.Int("created", res.CyclesModified),
		slog.Int("removed", res.CyclesRemoved),
		slog.Int("blocking_issues", res.BlockingIssuesCount),
	)
	return res, nil
}

func (r *Recalculator) record(ctx context.Context, e planlog.Entry, res RecalcResult, err error, started time.Time) {
	if r.planLog == nil {
		return
	}
	e.Success = err == nil && res.Success
	e.CyclesCreated = res.CyclesModified
	e.CyclesRemoved = res.CyclesRemoved
	e.BlockingIssues = res.BlockingIssuesCount
	e.Warnings = res.Warnings
	e.Summary = res.Summary
	e.Duration = time.Since(started)
	if err != nil {
		e.Error = err.Error()
	}
	r.planLog.Append(ctx, e)
}

// KeepFilter splits cycles into those surviving a recalculation and the number discarded.
// Terminal cycles always survive; in-progress ones only when lock is set. Planned cycles are
// regenerated, except under from_tomorrow where today's and locked ones stay.
func KeepFilter(cycles []storage.PlannedCycle, scope Scope, lock bool, tomorrow time.Time) ([]storage.PlannedCycle, int) {
	kept := make([]storage.PlannedCycle, 0, len(cycles))
	removed := 0
	for _, c := range cycles {
		keep := false
		switch c.Status {
		case storage.CycleCompleted, storage.CycleFailed, storage.CycleCancelled:
			keep = true
		case storage.CycleInProgress:
			keep = lock
		case storage.CyclePlanned:
			keep = scope == ScopeFromTomorrow && (c.Locked || c.StartTime.Before(tomorrow))
		}
		if keep {
			kept = append(kept, c)
		} else {
			removed++
		}
	}
	return kept, removed
}

// CompleteStaleCycles marks in-progress cycles whose end has passed as completed.
func CompleteStaleCycles(cycles []storage.PlannedCycle, now time.Time) ([]storage.PlannedCycle, []string) {
	out := append([]storage.PlannedCycle(nil), cycles...)
	var ids []string
	for i := range out {
		if out[i].Status == storage.CycleInProgress && out[i].EndTime.Before(now) {
			out[i].Status = storage.CycleCompleted
			ids = append(ids, out[i].ID)
		}
	}
	return out, ids
}

// EnforceSingleInProgress keeps only the latest-started in-progress cycle per printer and demotes the rest
// to completed.
func EnforceSingleInProgress(cycles []storage.PlannedCycle) ([]storage.PlannedCycle, []string) {
	out := append([]storage.PlannedCycle(nil), cycles...)
	latest := map[string]int{}
	for i, c := range out {
		if c.Status != storage.CycleInProgress {
			continue
		}
		j, ok := latest[c.PrinterID]
		if !ok || c.StartTime.After(out[j].StartTime) {
			latest[c.PrinterID] = i
		}
	}

	var demoted []string
	for i, c := range out {
		if c.Status == storage.CycleInProgress && latest[c.PrinterID] != i {
			out[i].Status = storage.CycleCompleted
			demoted = append(demoted, c.ID)
		}
	}
	return out, demoted
}
