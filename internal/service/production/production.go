package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"printfarm/internal/events"
	"printfarm/internal/service/impact"
	"printfarm/internal/service/material"
	"printfarm/internal/storage"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidUnits      = errors.New("unit counts must not be negative")
	ErrInvalidStatus     = errors.New("unknown printer status")
)

// Storage is the collection store. Its Locker is held across each action's reads and writes.
type Storage interface {
	sync.Locker
	GetProjects(ctx context.Context) ([]storage.Project, error)
	SaveProjects(ctx context.Context, projects []storage.Project) error
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
	SavePrinters(ctx context.Context, printers []storage.Printer) error
	GetProducts(ctx context.Context) ([]storage.Product, error)
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
	SaveCycles(ctx context.Context, cycles []storage.PlannedCycle) error
	GetColorInventory(ctx context.Context) ([]storage.ColorInventoryItem, error)
	SaveColorInventory(ctx context.Context, items []storage.ColorInventoryItem) error
	GetSpools(ctx context.Context) ([]storage.Spool, error)
	SaveSpools(ctx context.Context, spools []storage.Spool) error
	AppendCycleLog(ctx context.Context, entry storage.CycleLog) error
}

// Scheduler requests a debounced automatic replan.
type Scheduler interface {
	Schedule(reason string)
}

type Publisher interface {
	Publish(topic events.Topic, payload any)
}

// Service applies operator actions on the floor: starting and finishing cycles, loading material,
// retrieving plates. Every action is a read-modify-write of the affected collections.
type Service struct {
	log       *slog.Logger
	store     Storage
	replan    Scheduler
	bus       Publisher
	decisions *impact.DecisionLog
	now       func() time.Time
	newID     func() string

	mu        sync.Mutex
	changes   map[string]decisionChange
}

func New(log *slog.Logger, store Storage, replan Scheduler, bus Publisher, decisions *impact.DecisionLog) *Service {
	if decisions == nil {
		decisions = impact.NewDecisionLog(0)
	}
	return &Service{
		log:       log,
		store:     store,
		replan:    replan,
		bus:       bus,
		decisions: decisions,
		now:       time.Now,
		newID:     uuid.NewString,
		changes:   map[string]decisionChange{},
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// lock takes the store's write lock, then the service's own. The returned func releases both.
func (s *Service) lock() func() {
	s.store.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.store.Unlock()
	}
}

func (s *Service) schedule(reason string) {
	if s.replan != nil {
		s.replan.Schedule(reason)
	}
}

func (s *Service) publish(topic events.Topic, payload any) {
	if s.bus != nil {
		s.bus.Publish(topic, payload)
	}
}

// StartCycle marks a planned cycle as printing. Any other cycle still printing on the same printer is
// closed as completed first, since a printer runs one job at a time.
func (s *Service) StartCycle(ctx context.Context, cycleID string) (storage.PlannedCycle, error) {
	const op = "production.StartCycle"

	defer s.lock()()

	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
	}
	c := storage.CycleByID(cycles, cycleID)
	if c == nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %s: %w", op, cycleID, storage.ErrCycleNotFound)
	}
	if c.Status != storage.CyclePlanned {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %s is %s: %w", op, cycleID, c.Status, ErrInvalidTransition)
	}

	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
	}
	printer := storage.PrinterByID(printers, c.PrinterID)
	if printer == nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %s: %w", op, c.PrinterID, storage.ErrPrinterNotFound)
	}

	now := s.now()
	for i := range cycles {
		other := &cycles[i]
		if other.ID == cycleID || other.PrinterID != c.PrinterID || other.Status != storage.CycleInProgress {
			continue
		}
		s.log.Error("printer already had a cycle in progress, closing it",
			slog.String("op", op),
			slog.String("printer_id", c.PrinterID),
			slog.String("closed_cycle_id", other.ID),
			slog.String("started_cycle_id", cycleID),
		)
		other.Status = storage.CycleCompleted
		if other.EndTime.After(now) {
			other.EndTime = now
		}
	}

	duration := c.Duration()
	c.Status = storage.CycleInProgress
	c.StartTime = now
	c.EndTime = now.Add(duration)
	started := *c

	material.BeginUse(printer)

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
	}
	if p := storage.ProjectByID(projects, c.ProjectID); p != nil && p.Status == storage.ProjectPending {
		p.Status = storage.ProjectInProgress
		if err := s.store.SaveProjects(ctx, projects); err != nil {
			return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.store.SaveCycles(ctx, cycles); err != nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SavePrinters(ctx, printers); err != nil {
		return storage.PlannedCycle{}, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(events.PrintersChanged, printer.ID)

	s.log.Info("cycle started", slog.String("op", op), slog.String("cycle_id", cycleID), slog.String("printer_id", started.PrinterID))
	return started, nil
}

type CompleteRequest struct {
	CycleID    string  `json:"cycle_id"`
	UnitsGood  int     `json:"units_good"`
	UnitsScrap int     `json:"units_scrap"`
	GramsUsed  float64 `json:"grams_used"`
}

type CompleteResult struct {
	Cycle             storage.PlannedCycle        `json:"cycle"`
	ProjectCompleted  bool                        `json:"project_completed"`
	RecoveryProjectID string                      `json:"recovery_project_id,omitempty"`
	Consumption       material.ConsumeResult      `json:"consumption"`
	SpoolConsumption  material.SpoolConsumeResult `json:"spool_consumption"`
	CyclesCancelled   int                         `json:"cycles_cancelled"`
}

// CompleteCycle records the physical outcome of a cycle. Material is deducted in execution mode, so the
// books follow what was actually used even when they disagree.
func (s *Service) CompleteCycle(ctx context.Context, req CompleteRequest) (CompleteResult, error) {
	const op = "production.CompleteCycle"

	if req.UnitsGood < 0 || req.UnitsScrap < 0 || req.GramsUsed < 0 {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, ErrInvalidUnits)
	}

	defer s.lock()()

	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	c := storage.CycleByID(cycles, req.CycleID)
	if c == nil {
		return CompleteResult{}, fmt.Errorf("%s: %s: %w", op, req.CycleID, storage.ErrCycleNotFound)
	}
	if c.Status.Terminal() {
		return CompleteResult{}, fmt.Errorf("%s: %s is %s: %w", op, req.CycleID, c.Status, ErrInvalidTransition)
	}

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	project := storage.ProjectByID(projects, c.ProjectID)
	if project == nil {
		return CompleteResult{}, fmt.Errorf("%s: %s: %w", op, c.ProjectID, storage.ErrProjectNotFound)
	}

	now := s.now()
	c.Status = storage.CycleCompleted
	if req.UnitsGood == 0 && req.UnitsScrap > 0 {
		c.Status = storage.CycleFailed
	}
	c.UnitsGood = req.UnitsGood
	c.UnitsScrap = req.UnitsScrap
	if c.EndTime.After(now) {
		c.EndTime = now
	}

	grams := req.GramsUsed
	if grams == 0 {
		grams = c.GramsPlanned
	}

	res := CompleteResult{}

	// 1. Material
	items, err := s.store.GetColorInventory(ctx)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	spools, err := s.store.GetSpools(ctx)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	ledger := material.NewLedger(items, spools).WithClock(s.now)
	res.SpoolConsumption = ledger.ConsumeMaterial(c.RequiredColor, c.RequiredMaterial, grams, c.PrinterID, true)
	var remainingOnPrinter *float64
	if left, ok := ledger.SpoolRemainingOn(c.PrinterID, c.RequiredColor); ok {
		remainingOnPrinter = &left
	}
	res.Consumption = ledger.ConsumeFromColorInventory(c.RequiredColor, c.RequiredMaterial, grams, remainingOnPrinter)

	// 2. Project quantities
	project.QuantityGood += req.UnitsGood
	project.QuantityScrap += req.UnitsScrap
	if req.UnitsScrap > 0 && project.QuantityGood < project.QuantityTarget {
		recovery := s.recoveryProject(*project, req.UnitsScrap, now)
		project.QuantityTarget -= req.UnitsScrap
		projects = append(projects, recovery)
		project = storage.ProjectByID(projects, c.ProjectID)
		res.RecoveryProjectID = recovery.ID
	}
	if project.QuantityGood >= project.QuantityTarget {
		project.Status = storage.ProjectCompleted
		res.ProjectCompleted = true
		res.CyclesCancelled = cancelFuture(cycles, project.ID, now)
	} else if project.Status == storage.ProjectPending {
		project.Status = storage.ProjectInProgress
	}

	// 3. Printer: the finished plate stays on the printer until retrieved
	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if printer := storage.PrinterByID(printers, c.PrinterID); printer != nil {
		if printer.PhysicalPlateCapacity > 0 {
			printer.OccupiedPlates++
		}
		material.Release(printer)
	}

	res.Cycle = *c

	if err := s.store.SaveCycles(ctx, cycles); err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveProjects(ctx, projects); err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SavePrinters(ctx, printers); err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveColorInventory(ctx, ledger.Items()); err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveSpools(ctx, ledger.Spools()); err != nil {
		return CompleteResult{}, fmt.Errorf("%s: %w", op, err)
	}

	entry := storage.CycleLog{
		ID:         s.newID(),
		CycleID:    c.ID,
		ProjectID:  c.ProjectID,
		PrinterID:  c.PrinterID,
		Status:     c.Status,
		UnitsGood:  req.UnitsGood,
		UnitsScrap: req.UnitsScrap,
		GramsUsed:  grams,
		RecordedAt: now,
	}
	if err := s.store.AppendCycleLog(ctx, entry); err != nil {
		s.log.Warn("failed to write cycle log", slog.String("op", op), slog.String("cycle_id", c.ID), slog.String("error", err.Error()))
	}

	s.publish(events.InventoryChanged, storage.InventoryKey(c.RequiredColor, c.RequiredMaterial))
	s.publish(events.PrintersChanged, c.PrinterID)
	s.schedule("cycle_completed")

	s.log.Info("cycle completed",
		slog.String("op", op),
		slog.String("cycle_id", c.ID),
		slog.Int("units_good", req.UnitsGood),
		slog.Int("units_scrap", req.UnitsScrap),
		slog.Float64("grams_used", grams),
	)
	return res, nil
}

func (s *Service) recoveryProject(parent storage.Project, units int, now time.Time) storage.Project {
	return storage.Project{
		ID:                s.newID(),
		Name:              parent.Name + " (recovery)",
		ProductID:         parent.ProductID,
		PreferredPresetID: parent.PreferredPresetID,
		QuantityTarget:    units,
		DueDate:           parent.DueDate,
		Urgency:           parent.Urgency,
		Status:            storage.ProjectPending,
		Color:             parent.Color,
		Material:          parent.Material,
		ParentProjectID:   parent.ID,
		CreatedAt:         now,
	}
}

// cancelFuture cancels planned cycles of the project that have not started yet.
func cancelFuture(cycles []storage.PlannedCycle, projectID string, now time.Time) int {
	n := 0
	for i := range cycles {
		c := &cycles[i]
		if c.ProjectID == projectID && c.Status == storage.CyclePlanned && !c.StartTime.Before(now) {
			c.Status = storage.CycleCancelled
			n++
		}
	}
	return n
}
