package planning

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"printfarm/internal/constants"
	"printfarm/internal/service/calendar"
	"printfarm/internal/service/readiness"
	"printfarm/internal/storage"
)

type Scope string

const (
	ScopeFromNow      Scope = "from_now"
	ScopeFromTomorrow Scope = "from_tomorrow"
	ScopeWholeWeek    Scope = "whole_week"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeFromNow, ScopeFromTomorrow, ScopeWholeWeek:
		return Scope(s), nil
	case "":
		return ScopeFromNow, nil
	}
	return "", fmt.Errorf("unknown planning scope %q", s)
}

const (
	DefaultHorizonDays = 7
	maxSteps           = 20000
)

type IssueKind string

const (
	IssueMaterialShortage IssueKind = "material_shortage"
	IssueNoPreset         IssueKind = "no_preset"
	IssueUnknownProduct   IssueKind = "unknown_product"
	IssueNoPrinters       IssueKind = "no_printers"
)

// BlockingIssue is a condition that kept demand off the schedule and needs an operator.
type BlockingIssue struct {
	Kind           IssueKind `json:"kind"`
	ProjectID      string    `json:"project_id,omitempty"`
	Color          string    `json:"color,omitempty"`
	Material       string    `json:"material,omitempty"`
	GramsNeeded    float64   `json:"grams_needed,omitempty"`
	GramsAvailable float64   `json:"grams_available,omitempty"`
	Message        string    `json:"message"`
}

type Input struct {
	Now         time.Time
	Scope       Scope
	HorizonDays int
	Projects    []storage.Project
	Printers    []storage.Printer
	Products    []storage.Product
	Settings    storage.FactorySettings
	Inventory   readiness.Inventory
	// Existing holds the cycles surviving the keep filter. They occupy printers and plates.
	Existing []storage.PlannedCycle
	Location *time.Location
}

type Result struct {
	Cycles           []storage.PlannedCycle `json:"cycles"`
	BlockingIssues   []BlockingIssue        `json:"blocking_issues"`
	Warnings         []string               `json:"warnings"`
	UnscheduledUnits map[string]int         `json:"unscheduled_units"`
	WindowStart      time.Time              `json:"window_start"`
	HorizonEnd       time.Time              `json:"horizon_end"`
}

type Engine struct {
	log   *slog.Logger
	newID func() string
}

func NewEngine(log *slog.Logger) *Engine {
	return &Engine{log: log, newID: uuid.NewString}
}

// PlanningWindow returns where generation may start and the horizon end for a scope.
func PlanningWindow(scope Scope, now time.Time, horizonDays int, loc *time.Location) (time.Time, time.Time) {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	lt := now.In(loc)
	today := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)

	switch scope {
	case ScopeFromTomorrow:
		start := today.AddDate(0, 0, 1)
		return start, start.AddDate(0, 0, horizonDays)
	case ScopeWholeWeek:
		return today, today.AddDate(0, 0, horizonDays)
	default:
		return now, today.AddDate(0, 0, horizonDays)
	}
}

type demand struct {
	project   storage.Project
	urgency   storage.Urgency
	product   *storage.Product
	remaining int
	blocked   bool
}

type printerState struct {
	printer   storage.Printer
	cursor    time.Time
	plates    []time.Time // release time per physical plate
	overnight map[string]bool
	done      bool
}

type slot struct {
	start      time.Time
	limit      time.Time // end of the attended window, zero when unattended
	unattended bool
	canExtend  bool
}

type choice struct {
	preset    *storage.PlatePreset
	units     int
	hours     float64
	plateType storage.PlateType
	extends   bool
}

type run struct {
	in      Input
	res     *calendar.Resolver
	start   time.Time
	horizon time.Time
	budget  map[string]float64
	issues  []BlockingIssue
	out     Result
}

// GeneratePlan fills the planning window with cycles for plannable projects. It never returns an error:
// anything that blocks demand is reported as a BlockingIssue or a warning.
func (e *Engine) GeneratePlan(in Input) Result {
	const op = "planning.GeneratePlan"
	log := e.log.With(slog.String("op", op))

	loc := in.Location
	if loc == nil {
		loc = time.Local
	}
	in.Location = loc

	r := &run{
		in:     in,
		res:    calendar.NewResolver(&in.Settings, loc),
		budget: map[string]float64{},
	}
	r.start, r.horizon = PlanningWindow(in.Scope, in.Now, in.HorizonDays, loc)
	r.out.WindowStart = r.start
	r.out.HorizonEnd = r.horizon
	r.out.UnscheduledUnits = map[string]int{}

	demands := r.collectDemand()
	if len(demands) == 0 {
		log.Debug("nothing to plan")
		r.out.BlockingIssues = append(r.out.BlockingIssues, r.issues...)
		return r.out
	}

	printers := r.initPrinters()
	if len(printers) == 0 {
		r.out.BlockingIssues = append(r.out.BlockingIssues, BlockingIssue{
			Kind:    IssueNoPrinters,
			Message: "no active printers available",
		})
		for _, d := range demands {
			r.out.UnscheduledUnits[d.project.ID] = d.remaining
		}
		r.out.BlockingIssues = append(r.out.BlockingIssues, r.issues...)
		return r.out
	}

	for step := 0; step < maxSteps; step++ {
		ps := nextPrinter(printers, r.horizon)
		if ps == nil {
			break
		}
		e.step(r, ps, demands)
	}

	for _, d := range demands {
		if d.remaining > 0 {
			r.out.UnscheduledUnits[d.project.ID] = d.remaining
			if !d.blocked {
				r.out.Warnings = append(r.out.Warnings,
					fmt.Sprintf("project %s: %d units do not fit before %s", d.project.Name, d.remaining, r.horizon.Format(storage.DateLayout)))
			}
		}
	}
	r.out.BlockingIssues = append(r.out.BlockingIssues, r.issues...)

	log.Info("plan generated",
		slog.Int("cycles", len(r.out.Cycles)),
		slog.Int("blocking_issues", len(r.out.BlockingIssues)),
		slog.Int("warnings", len(r.out.Warnings)),
	)
	return r.out
}

func (r *run) collectDemand() []*demand {
	inFlight := map[string]int{}
	for _, c := range r.in.Existing {
		if c.Status == storage.CycleInProgress || c.Status == storage.CyclePlanned {
			inFlight[c.ProjectID] += c.UnitsPlanned
		}
	}

	var plannable []storage.Project
	for _, p := range r.in.Projects {
		if p.IsPlannable() && p.RemainingUnits() > 0 {
			plannable = append(plannable, p)
		}
	}

	var out []*demand
	for _, rp := range RankProjects(plannable, r.in.Settings.PriorityRules, r.in.Now, r.in.Location) {
		p := rp.Project
		remaining := p.RemainingUnits() - inFlight[p.ID]
		if remaining <= 0 {
			continue
		}

		product := storage.ProductByID(r.in.Products, p.ProductID)
		if product == nil {
			r.issues = append(r.issues, BlockingIssue{
				Kind:      IssueUnknownProduct,
				ProjectID: p.ID,
				Message:   fmt.Sprintf("project %s references unknown product %s", p.Name, p.ProductID),
			})
			r.out.UnscheduledUnits[p.ID] = remaining
			continue
		}
		if product.RecommendedPreset() == nil {
			r.issues = append(r.issues, BlockingIssue{
				Kind:      IssueNoPreset,
				ProjectID: p.ID,
				Message:   fmt.Sprintf("product %s has no usable plate preset", product.Name),
			})
			r.out.UnscheduledUnits[p.ID] = remaining
			continue
		}

		out = append(out, &demand{project: p, urgency: rp.Urgency, product: product, remaining: remaining})
	}
	return out
}

func (r *run) initPrinters() []*printerState {
	earliest := r.start
	if earliest.Before(r.in.Now) {
		earliest = r.in.Now
	}
	transition := r.in.Settings.Transition()

	var out []*printerState
	for _, p := range r.in.Printers {
		if !p.IsActive() {
			continue
		}
		ps := &printerState{printer: p, cursor: earliest, overnight: map[string]bool{}}

		for _, c := range r.in.Existing {
			if c.PrinterID != p.ID || c.Status.Terminal() {
				continue
			}
			if busy := c.EndTime.Add(transition); busy.After(ps.cursor) {
				ps.cursor = busy
			}
		}

		if capacity := p.PhysicalPlateCapacity; capacity > 0 {
			ps.plates = make([]time.Time, capacity)
			occupied := p.OccupiedPlates
			if occupied > capacity {
				occupied = capacity
			}
			clearAt := r.releaseAt(earliest)
			for i := 0; i < occupied; i++ {
				ps.plates[i] = clearAt
			}
			for _, c := range r.in.Existing {
				if c.PrinterID != p.ID || c.Status.Terminal() {
					continue
				}
				r.takePlate(ps, c.EndTime)
			}
		}
		out = append(out, ps)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].printer.ID < out[j].printer.ID })
	return out
}

func nextPrinter(printers []*printerState, horizon time.Time) *printerState {
	var best *printerState
	for _, ps := range printers {
		if ps.done {
			continue
		}
		if !ps.cursor.Before(horizon) {
			ps.done = true
			continue
		}
		if best == nil || ps.cursor.Before(best.cursor) {
			best = ps
		}
	}
	return best
}

func (e *Engine) step(r *run, ps *printerState, demands []*demand) {
	s, ok := r.slotAt(ps)
	if !ok {
		return
	}

	if len(ps.plates) > 0 {
		idx := freePlate(ps)
		if release := ps.plates[idx]; release.After(s.start) {
			ps.cursor = release
			return
		}
	}

	var picked *demand
	var ch choice
	for _, d := range demands {
		if d.remaining <= 0 || d.blocked {
			continue
		}
		if c, fits := r.choose(d, s); fits {
			picked, ch = d, c
			break
		}
	}

	if picked == nil {
		if !anyOpen(demands) {
			ps.done = true
			return
		}
		r.skipSlot(ps, s)
		return
	}

	r.place(e, ps, s, picked, ch)
}

// slotAt normalizes the printer cursor to a slot it may start a cycle in, or moves the cursor forward.
func (r *run) slotAt(ps *printerState) (slot, bool) {
	t := ps.cursor
	w := r.res.WindowFor(t)
	behavior := r.in.Settings.AfterHoursBehavior

	if w.Contains(t) {
		s := slot{start: t, limit: w.End}
		switch behavior {
		case storage.AfterHoursOneCycleEndDay:
			s.canExtend = !ps.overnight[dayKey(w.Start)]
		case storage.AfterHoursFullAutomation:
			s.canExtend = ps.printer.CanStartNewCyclesAfterHours || !ps.overnight[dayKey(w.Start)]
		}
		return s, true
	}

	if behavior == storage.AfterHoursFullAutomation && ps.printer.CanStartNewCyclesAfterHours {
		return slot{start: t, unattended: true}, true
	}

	next, ok := r.res.EarliestStart(t, false)
	if !ok || !next.Before(r.horizon) {
		ps.done = true
		return slot{}, false
	}
	ps.cursor = next
	return slot{}, false
}

func (r *run) skipSlot(ps *printerState, s slot) {
	if !s.unattended {
		// Nothing fits the rest of this window; the after-hours part may still take an unattended cycle.
		if s.limit.After(ps.cursor) {
			ps.cursor = s.limit
			return
		}
	}
	next, ok := r.res.NextWindowStart(ps.cursor.Add(time.Minute))
	if !ok || !next.Before(r.horizon) {
		ps.done = true
		return
	}
	ps.cursor = next
}

func anyOpen(demands []*demand) bool {
	for _, d := range demands {
		if d.remaining > 0 && !d.blocked {
			return true
		}
	}
	return false
}

// presetOrder lists candidate presets for a slot. Unattended slots only take night-allowed presets
// of a night-safe material, lowest risk first.
func presetOrder(d *demand, s slot) []*storage.PlatePreset {
	if s.unattended && !nightSafe(d.project.Material) {
		return nil
	}
	var out []*storage.PlatePreset
	for i := range d.product.Presets {
		pr := &d.product.Presets[i]
		if pr.UnitsPerPlate <= 0 || pr.CycleHours <= 0 {
			continue
		}
		if s.unattended && !pr.AllowedForNightCycle {
			continue
		}
		out = append(out, pr)
	}

	preferred := d.project.PreferredPresetID
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.ID == preferred) != (b.ID == preferred) {
			return a.ID == preferred
		}
		if s.unattended && riskRank(a.RiskLevel) != riskRank(b.RiskLevel) {
			return riskRank(a.RiskLevel) < riskRank(b.RiskLevel)
		}
		return a.IsRecommended && !b.IsRecommended
	})
	return out
}

// nightSafe reports whether a material may print with nobody on site. Unspecified counts as safe.
func nightSafe(material string) bool {
	m := strings.ToUpper(strings.TrimSpace(material))
	return m == "" || constants.NightSafeMaterials[m]
}

func riskRank(r storage.RiskLevel) int {
	switch r {
	case storage.RiskLow:
		return 0
	case storage.RiskMedium:
		return 1
	case storage.RiskHigh:
		return 2
	}
	return 1
}

func plateFor(pr *storage.PlatePreset, remaining int) choice {
	units := pr.UnitsPerPlate
	pt := storage.PlateFull
	if remaining < units {
		units = remaining
		pt = storage.PlateCloseout
	}
	return choice{
		preset:    pr,
		units:     units,
		hours:     pr.CycleHours * float64(units) / float64(pr.UnitsPerPlate),
		plateType: pt,
	}
}

func endOf(start time.Time, hours float64) time.Time {
	return start.Add(time.Duration(hours * float64(time.Hour)))
}

// choose picks the preset and plate size for a project in a slot. Attended slots prefer a plate
// that finishes inside the window, then one overnight cycle when allowed, then a reduced plate.
func (r *run) choose(d *demand, s slot) (choice, bool) {
	presets := presetOrder(d, s)
	if len(presets) == 0 {
		return choice{}, false
	}

	if s.unattended {
		return plateFor(presets[0], d.remaining), true
	}

	for _, pr := range presets {
		c := plateFor(pr, d.remaining)
		if !endOf(s.start, c.hours).After(s.limit) {
			return c, true
		}
	}

	if s.canExtend {
		for _, pr := range presets {
			if pr.AllowedForNightCycle {
				c := plateFor(pr, d.remaining)
				c.extends = true
				return c, true
			}
		}
	}

	available := s.limit.Sub(s.start).Hours()
	for _, pr := range presets {
		perUnit := pr.CycleHours / float64(pr.UnitsPerPlate)
		units := int(math.Floor(available/perUnit + 1e-9))
		if units > d.remaining {
			units = d.remaining
		}
		if units < 1 {
			continue
		}
		pt := storage.PlateReduced
		if units == d.remaining {
			pt = storage.PlateCloseout
		}
		return choice{preset: pr, units: units, hours: perUnit * float64(units), plateType: pt}, true
	}
	return choice{}, false
}

func (r *run) place(e *Engine, ps *printerState, s slot, d *demand, ch choice) {
	p := d.project
	unitGrams := d.product.UnitGrams(ch.preset)
	grams := unitGrams * float64(ch.units)
	end := endOf(s.start, ch.hours)

	c := storage.PlannedCycle{
		ID:               e.newID(),
		ProjectID:        p.ID,
		PrinterID:        ps.printer.ID,
		PresetID:         ch.preset.ID,
		UnitsPlanned:     ch.units,
		GramsPlanned:     grams,
		PlateType:        ch.plateType,
		StartTime:        s.start,
		EndTime:          end,
		Status:           storage.CyclePlanned,
		ReadinessState:   storage.ReadyToStart,
		RequiredColor:    p.Color,
		RequiredMaterial: p.Material,
		RequiredGrams:    grams,
		Source:           storage.SourceAuto,
		Unattended:       s.unattended || ch.extends,
	}

	if p.Color != "" && r.in.Inventory != nil {
		key := storage.InventoryKey(p.Color, p.Material)
		avail, ok := r.budget[key]
		if !ok {
			avail = r.in.Inventory.AvailableGrams(p.Color, p.Material)
		}
		if avail < grams {
			c.ReadinessState = storage.BlockedInventory
			c.ReadinessDetails = fmt.Sprintf("need %.0fg %s %s, %.0fg available", grams, p.Material, p.Color, math.Max(avail, 0))
			d.blocked = true
			r.issues = append(r.issues, BlockingIssue{
				Kind:           IssueMaterialShortage,
				ProjectID:      p.ID,
				Color:          p.Color,
				Material:       p.Material,
				GramsNeeded:    unitGrams * float64(d.remaining),
				GramsAvailable: math.Max(avail, 0),
				Message:        fmt.Sprintf("project %s is short of %s %s", p.Name, p.Material, p.Color),
			})
			e.log.Warn("material shortage blocks project",
				slog.String("project_id", p.ID),
				slog.String("color", p.Color),
				slog.Float64("grams_needed", grams),
				slog.Float64("grams_available", avail),
			)
		}
		r.budget[key] = avail - grams
	}

	if len(ps.plates) > 0 {
		idx := r.takePlate(ps, end)
		c.PlateIndex = idx + 1
		release := ps.plates[idx]
		c.PlateReleaseTime = &release
	}

	if ch.extends {
		ps.overnight[dayKey(r.res.WindowFor(s.start).Start)] = true
	}

	d.remaining -= ch.units
	ps.cursor = end.Add(r.in.Settings.Transition())
	r.out.Cycles = append(r.out.Cycles, c)
}

// releaseAt is when a plate finishing at t can be cleared: immediately during work hours,
// otherwise at the next window start.
func (r *run) releaseAt(t time.Time) time.Time {
	if r.res.IsWorkTime(t) {
		return t
	}
	if next, ok := r.res.NextWindowStart(t); ok {
		return next
	}
	return r.horizon
}

func freePlate(ps *printerState) int {
	idx := 0
	for i := range ps.plates {
		if ps.plates[i].Before(ps.plates[idx]) {
			idx = i
		}
	}
	return idx
}

func (r *run) takePlate(ps *printerState, end time.Time) int {
	idx := freePlate(ps)
	ps.plates[idx] = r.releaseAt(end)
	return idx
}

func dayKey(t time.Time) string {
	return t.Format(storage.DateLayout)
}
