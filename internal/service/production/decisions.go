package production

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"printfarm/internal/service/impact"
	"printfarm/internal/storage"
)

type ScrapDecisionRequest struct {
	Option     impact.Option `json:"option"`
	ProjectID  string        `json:"project_id"`
	CycleID    string        `json:"cycle_id,omitempty"`
	UnitsScrap int           `json:"units_scrap"`
	// RecoveryProjectID as returned by CompleteCycle; the newest open one is used when empty.
	RecoveryProjectID string `json:"recovery_project_id,omitempty"`
	// MergeTargetCycleID is required for merge_with_future.
	MergeTargetCycleID string `json:"merge_target_cycle_id,omitempty"`
}

// decisionChange records the fields a decision touched, so undo reverses only those.
type decisionChange struct {
	parentID    string
	parentDelta int

	recoveryID      string
	recoveryCreated bool
	recoveryBefore  storage.Project

	mergedCycleID string
	cycleBefore   storage.PlannedCycle
}

// ApplyScrapDecision carries out the operator's choice for scrapped units. What it changed is kept so
// the decision can be undone within the undo window.
func (s *Service) ApplyScrapDecision(ctx context.Context, req ScrapDecisionRequest) (impact.Decision, error) {
	const op = "production.ApplyScrapDecision"

	if _, err := impact.ParseOption(string(req.Option)); err != nil {
		return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if req.UnitsScrap <= 0 {
		return impact.Decision{}, fmt.Errorf("%s: units_scrap must be positive", op)
	}

	defer s.lock()()

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	parent := storage.ProjectByID(projects, req.ProjectID)
	if parent == nil {
		return impact.Decision{}, fmt.Errorf("%s: %s: %w", op, req.ProjectID, storage.ErrProjectNotFound)
	}

	d := impact.Decision{
		Option:     req.Option,
		ProjectID:  req.ProjectID,
		CycleID:    req.CycleID,
		UnitsScrap: req.UnitsScrap,
	}
	ch := decisionChange{parentID: parent.ID}

	recovery := findRecovery(projects, req.ProjectID, req.RecoveryProjectID)
	if recovery != nil {
		ch.recoveryID = recovery.ID
		ch.recoveryBefore = *recovery
	}

	switch req.Option {
	case impact.CompleteNow, impact.DeferToLater:
		if recovery == nil {
			r := s.recoveryProject(*parent, req.UnitsScrap, s.now())
			parent.QuantityTarget -= req.UnitsScrap
			ch.parentDelta = -req.UnitsScrap
			ch.recoveryID = r.ID
			ch.recoveryCreated = true
			projects = append(projects, r)
			recovery = &projects[len(projects)-1]
		}
		recovery.UrgencyManualOverride = true
		recovery.Urgency = storage.UrgencyCritical
		if req.Option == impact.DeferToLater {
			recovery.Urgency = storage.UrgencyNormal
		}
		d.RecoveryProjectID = recovery.ID

	case impact.MergeWithFuture:
		if err := s.merge(ctx, cycles, parent, recovery, req, &d, &ch); err != nil {
			return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
		}

	case impact.Ignore:
		if recovery != nil {
			excluded := false
			recovery.IncludeInPlanning = &excluded
			recovery.Status = storage.ProjectOnHold
			d.RecoveryProjectID = recovery.ID
		}
	}

	if err := s.store.SaveProjects(ctx, projects); err != nil {
		return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
	}
	if ch.mergedCycleID != "" {
		if err := s.store.SaveCycles(ctx, cycles); err != nil {
			return impact.Decision{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	d = s.decisions.Record(d)
	for id := range s.changes {
		if !s.decisions.CanUndo(id) {
			delete(s.changes, id)
		}
	}
	s.changes[d.ID] = ch
	if req.Option != impact.Ignore {
		s.schedule("scrap_decision")
	}

	s.log.Info("scrap decision applied",
		slog.String("op", op),
		slog.String("decision_id", d.ID),
		slog.String("option", string(d.Option)),
		slog.String("project_id", d.ProjectID),
	)
	return d, nil
}

// merge adds the scrapped units to a future cycle of the same project. Units that fit move back from
// the recovery project to the parent.
func (s *Service) merge(ctx context.Context, cycles []storage.PlannedCycle, parent, recovery *storage.Project, req ScrapDecisionRequest, d *impact.Decision, ch *decisionChange) error {
	target := storage.CycleByID(cycles, req.MergeTargetCycleID)
	if target == nil {
		return fmt.Errorf("%s: %w", req.MergeTargetCycleID, storage.ErrCycleNotFound)
	}
	if target.ProjectID != parent.ID || target.Status != storage.CyclePlanned || !target.StartTime.After(s.now()) {
		return fmt.Errorf("cycle %s cannot absorb units: %w", target.ID, ErrInvalidTransition)
	}

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return err
	}
	product := storage.ProductByID(products, parent.ProductID)
	if product == nil {
		return fmt.Errorf("%s: %w", parent.ProductID, storage.ErrProductNotFound)
	}

	spare := product.MaxUnitsPerPlate() - target.UnitsPlanned
	absorbed := req.UnitsScrap
	if absorbed > spare {
		absorbed = spare
	}
	if absorbed <= 0 {
		return fmt.Errorf("cycle %s is already full: %w", target.ID, ErrInvalidTransition)
	}

	ch.mergedCycleID = target.ID
	ch.cycleBefore = *target

	unitGrams := product.UnitGrams(product.Preset(target.PresetID))
	if target.UnitsPlanned > 0 {
		scale := float64(target.UnitsPlanned+absorbed) / float64(target.UnitsPlanned)
		target.EndTime = target.StartTime.Add(durationScaled(target.Duration(), scale))
	}
	target.UnitsPlanned += absorbed
	target.GramsPlanned += unitGrams * float64(absorbed)
	target.RequiredGrams += unitGrams * float64(absorbed)
	target.Source = storage.SourceManual

	if recovery != nil {
		recovery.QuantityTarget -= absorbed
		parent.QuantityTarget += absorbed
		ch.parentDelta = absorbed
		if recovery.QuantityTarget <= 0 {
			recovery.QuantityTarget = 0
			recovery.Status = storage.ProjectCompleted
		}
		d.RecoveryProjectID = recovery.ID
	}

	d.MergedIntoCycleID = target.ID
	d.MergedUnits = absorbed
	return nil
}

// UndoScrapDecision reverses the fields the decision changed. Everything else recorded since, operator
// actions and replans alike, is left as it is now.
func (s *Service) UndoScrapDecision(ctx context.Context, decisionID string) (impact.Decision, error) {
	const op = "production.UndoScrapDecision"

	defer s.lock()()

	d, err := s.decisions.MarkUndone(decisionID)
	if err != nil {
		return d, fmt.Errorf("%s: %w", op, err)
	}
	ch, ok := s.changes[decisionID]
	if !ok {
		return d, fmt.Errorf("%s: %w", op, impact.ErrDecisionNotFound)
	}
	delete(s.changes, decisionID)

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return d, fmt.Errorf("%s: %w", op, err)
	}
	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return d, fmt.Errorf("%s: %w", op, err)
	}

	cyclesChanged := false
	if ch.mergedCycleID != "" {
		c := storage.CycleByID(cycles, ch.mergedCycleID)
		switch {
		case c == nil:
			s.log.Warn("merged cycle is gone, units go back to the recovery project",
				slog.String("op", op), slog.String("cycle_id", ch.mergedCycleID))
		case c.Status != storage.CyclePlanned:
			s.log.Warn("merged cycle already started, keeping its units",
				slog.String("op", op), slog.String("cycle_id", c.ID), slog.String("status", string(c.Status)))
			s.schedule("scrap_decision_undone")
			return d, nil
		default:
			before := ch.cycleBefore
			c.UnitsPlanned = before.UnitsPlanned
			c.GramsPlanned = before.GramsPlanned
			c.RequiredGrams = before.RequiredGrams
			c.EndTime = c.StartTime.Add(before.Duration())
			c.Source = before.Source
			cyclesChanged = true
		}
	}

	parentDelta := ch.parentDelta
	switch {
	case ch.recoveryCreated && startedWork(cycles, ch.recoveryID):
		s.log.Warn("recovery project already has work, keeping it",
			slog.String("op", op), slog.String("project_id", ch.recoveryID))
		parentDelta = 0
	case ch.recoveryCreated:
		projects = removeProject(projects, ch.recoveryID)
		before := len(cycles)
		cycles = removeProjectCycles(cycles, ch.recoveryID)
		cyclesChanged = cyclesChanged || len(cycles) != before
	case ch.recoveryID != "":
		if r := storage.ProjectByID(projects, ch.recoveryID); r != nil {
			before := ch.recoveryBefore
			r.QuantityTarget = before.QuantityTarget
			r.Status = before.Status
			r.Urgency = before.Urgency
			r.UrgencyManualOverride = before.UrgencyManualOverride
			r.IncludeInPlanning = before.IncludeInPlanning
		}
	}
	if parent := storage.ProjectByID(projects, ch.parentID); parent != nil {
		parent.QuantityTarget -= parentDelta
	}

	if err := s.store.SaveProjects(ctx, projects); err != nil {
		return d, fmt.Errorf("%s: %w", op, err)
	}
	if cyclesChanged {
		if err := s.store.SaveCycles(ctx, cycles); err != nil {
			return d, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.schedule("scrap_decision_undone")
	return d, nil
}

// startedWork reports whether any cycle of the project went past planned.
func startedWork(cycles []storage.PlannedCycle, projectID string) bool {
	for _, c := range cycles {
		if c.ProjectID == projectID && c.Status != storage.CyclePlanned && c.Status != storage.CycleCancelled {
			return true
		}
	}
	return false
}

func removeProject(projects []storage.Project, id string) []storage.Project {
	out := make([]storage.Project, 0, len(projects))
	for _, p := range projects {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func removeProjectCycles(cycles []storage.PlannedCycle, projectID string) []storage.PlannedCycle {
	out := make([]storage.PlannedCycle, 0, len(cycles))
	for _, c := range cycles {
		if c.ProjectID != projectID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) RecentDecisions(n int) []impact.Decision {
	return s.decisions.Recent(n)
}

func findRecovery(projects []storage.Project, parentID, id string) *storage.Project {
	if id != "" {
		p := storage.ProjectByID(projects, id)
		if p != nil && p.ParentProjectID == parentID {
			return p
		}
		return nil
	}
	var newest *storage.Project
	for i := range projects {
		p := &projects[i]
		if p.ParentProjectID != parentID || p.Status == storage.ProjectCompleted {
			continue
		}
		if newest == nil || p.CreatedAt.After(newest.CreatedAt) {
			newest = p
		}
	}
	return newest
}

func durationScaled(d time.Duration, scale float64) time.Duration {
	return time.Duration(math.Round(float64(d) * scale))
}
