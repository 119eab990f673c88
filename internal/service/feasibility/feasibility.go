package feasibility

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"printfarm/internal/service/calendar"
	"printfarm/internal/storage"
)

var ErrInvalidProposal = errors.New("invalid proposal")

type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// Competitor multipliers: how much of the proposal's hours an existing project is expected to absorb.
const (
	sameColorEarlierWeight = 1.0
	sameColorWeight        = 0.6
	otherColorWeight       = 0.4
)

type Config struct {
	SafetyMargin        float64
	NightPlateLimit     int
	SlackThresholdHours float64
}

func DefaultConfig() Config {
	return Config{SafetyMargin: 0.2, NightPlateLimit: 1, SlackThresholdHours: 8}
}

type Proposal struct {
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	DueDate        string          `json:"due_date"`
	Urgency        storage.Urgency `json:"urgency"`
	PreferredColor string          `json:"preferred_color"`
	Material       string          `json:"material,omitempty"`
}

type Snapshot struct {
	Now      time.Time
	Location *time.Location
	Settings storage.FactorySettings
	Projects []storage.Project
	Products []storage.Product
	Printers []storage.Printer
	Cycles   []storage.PlannedCycle
}

type ProjectImpact struct {
	ProjectID      string  `json:"project_id"`
	Name           string  `json:"name"`
	DueDate        string  `json:"due_date"`
	Multiplier     float64 `json:"multiplier"`
	SlackBefore    float64 `json:"slack_hours_before"`
	SlackAfter     float64 `json:"slack_hours_after"`
	MissesDeadline bool    `json:"misses_deadline"`
}

type Result struct {
	Feasible           bool            `json:"feasible"`
	Risk               Risk            `json:"risk"`
	IsEstimate         bool            `json:"is_estimate"`
	CyclesNeeded       int             `json:"cycles_needed"`
	HoursNeeded        float64         `json:"hours_needed"`
	GramsNeeded        float64         `json:"grams_needed"`
	DaysUntilDue       int             `json:"days_until_due"`
	ActivePrinters     int             `json:"active_printers"`
	DailyCapacityHours float64         `json:"daily_capacity_hours"`
	CapacityHours      float64         `json:"capacity_hours"`
	BacklogHours       float64         `json:"backlog_hours"`
	FreeHours          float64         `json:"free_hours"`
	Utilization        float64         `json:"utilization"`
	AffectedProjects   []ProjectImpact `json:"affected_projects,omitempty"`
	Reasons            []string        `json:"reasons,omitempty"`
}

type Checker struct {
	log *slog.Logger
	cfg Config
}

func NewChecker(log *slog.Logger, cfg Config) *Checker {
	def := DefaultConfig()
	if cfg.SafetyMargin <= 0 || cfg.SafetyMargin >= 1 {
		cfg.SafetyMargin = def.SafetyMargin
	}
	if cfg.NightPlateLimit <= 0 {
		cfg.NightPlateLimit = def.NightPlateLimit
	}
	if cfg.SlackThresholdHours <= 0 {
		cfg.SlackThresholdHours = def.SlackThresholdHours
	}
	return &Checker{log: log, cfg: cfg}
}

// Check estimates whether a proposed order fits. It reads the snapshot only.
func (c *Checker) Check(snap Snapshot, p Proposal) (Result, error) {
	const op = "feasibility.Check"

	if snap.Location == nil {
		snap.Location = time.Local
	}
	if p.Quantity <= 0 {
		return Result{}, fmt.Errorf("%s: quantity must be positive: %w", op, ErrInvalidProposal)
	}
	product := storage.ProductByID(snap.Products, p.ProductID)
	if product == nil {
		return Result{}, fmt.Errorf("%s: %w", op, storage.ErrProductNotFound)
	}
	preset := product.RecommendedPreset()
	if preset == nil {
		return Result{}, fmt.Errorf("%s: product %s has no usable preset", op, product.ID)
	}
	due, err := time.ParseInLocation(storage.DateLayout, p.DueDate, snap.Location)
	if err != nil {
		return Result{}, fmt.Errorf("%s: due date %q: %w", op, p.DueDate, ErrInvalidProposal)
	}
	deadline := due.AddDate(0, 0, 1).Add(-time.Millisecond)

	m := &model{cfg: c.cfg, snap: snap, res: calendar.NewResolver(&snap.Settings, snap.Location)}

	out := Result{IsEstimate: true}
	out.CyclesNeeded = int(math.Ceil(float64(p.Quantity) / float64(preset.UnitsPerPlate)))
	out.HoursNeeded = float64(out.CyclesNeeded) * preset.CycleHours
	out.GramsNeeded = float64(p.Quantity) * product.UnitGrams(preset)
	out.DaysUntilDue = int(math.Ceil(deadline.Sub(snap.Now).Hours() / 24))
	out.ActivePrinters = m.activePrinters()
	out.DailyCapacityHours = m.dailyCapacity(m.res.DayStart(snap.Now), preset)
	out.CapacityHours = m.capacityUntil(deadline, preset)
	out.BacklogHours = m.backlogUntil(deadline)
	out.FreeHours = out.CapacityHours - out.BacklogHours
	if out.FreeHours > 0 {
		out.Utilization = out.HoursNeeded / out.FreeHours
	} else {
		out.Utilization = math.Inf(1)
	}

	switch {
	case out.ActivePrinters == 0:
		out.Risk = RiskCritical
		out.Reasons = append(out.Reasons, "no active printers")
	case !deadline.After(snap.Now):
		out.Risk = RiskCritical
		out.Reasons = append(out.Reasons, "due date has already passed")
	case out.FreeHours < out.HoursNeeded:
		out.Risk = RiskCritical
		out.Reasons = append(out.Reasons, fmt.Sprintf("needs %.1fh, %.1fh free before the due date", out.HoursNeeded, math.Max(out.FreeHours, 0)))
	case out.Utilization > 0.8:
		out.Risk = RiskHigh
	case out.Utilization > 0.5:
		out.Risk = RiskMedium
	default:
		out.Risk = RiskLow
	}

	out.AffectedProjects = m.impactOnProjects(p, deadline, out.HoursNeeded)
	for _, ip := range out.AffectedProjects {
		if ip.MissesDeadline {
			out.Risk = RiskCritical
			out.Reasons = append(out.Reasons, fmt.Sprintf("project %s would miss its deadline", ip.Name))
		}
	}
	if p.Urgency == storage.UrgencyCritical && out.Risk == RiskLow {
		out.Risk = RiskMedium
	}
	out.Feasible = out.Risk != RiskCritical

	c.log.Debug("proposal checked",
		slog.String("op", op),
		slog.String("product_id", p.ProductID),
		slog.Int("quantity", p.Quantity),
		slog.String("risk", string(out.Risk)),
	)
	return out, nil
}

type model struct {
	cfg  Config
	snap Snapshot
	res  *calendar.Resolver
}

func (m *model) activePrinters() int {
	n := 0
	for _, p := range m.snap.Printers {
		if p.IsActive() {
			n++
		}
	}
	return n
}

// nightHours is the unattended capacity one printer adds after a work day.
func (m *model) nightHours(p storage.Printer, w calendar.Window, preset *storage.PlatePreset) float64 {
	if !w.Enabled || !preset.AllowedForNightCycle {
		return 0
	}
	plates := 0
	switch m.snap.Settings.AfterHoursBehavior {
	case storage.AfterHoursOneCycleEndDay:
		plates = 1
	case storage.AfterHoursFullAutomation:
		plates = 1
		if p.CanStartNewCyclesAfterHours {
			plates = m.cfg.NightPlateLimit
		}
	}
	off := 24 - w.Hours()
	return math.Min(off, float64(plates)*preset.CycleHours)
}

func (m *model) dailyCapacity(day time.Time, preset *storage.PlatePreset) float64 {
	w := m.res.WindowFor(day)
	total := 0.0
	for _, p := range m.snap.Printers {
		if !p.IsActive() {
			continue
		}
		total += w.Hours() + m.nightHours(p, w, preset)
	}
	return total
}

// capacityUntil sums fleet hours from now to the deadline and applies the safety margin.
func (m *model) capacityUntil(deadline time.Time, preset *storage.PlatePreset) float64 {
	now := m.snap.Now
	if !deadline.After(now) {
		return 0
	}
	total := 0.0
	for day := m.res.DayStart(now); day.Before(deadline); day = day.AddDate(0, 0, 1) {
		w := m.res.WindowFor(day)
		dayHours := m.res.WorkHoursBetween(maxTime(day, now), minTime(day.AddDate(0, 0, 1), deadline))
		for _, p := range m.snap.Printers {
			if !p.IsActive() {
				continue
			}
			total += dayHours
			if w.Enabled && w.End.After(now) && w.End.Before(deadline) {
				total += m.nightHours(p, w, preset)
			}
		}
	}
	return total * (1 - m.cfg.SafetyMargin)
}

// backlogUntil counts committed cycle hours left before the deadline.
func (m *model) backlogUntil(deadline time.Time) float64 {
	total := 0.0
	for _, c := range m.snap.Cycles {
		if c.Status != storage.CyclePlanned && c.Status != storage.CycleInProgress {
			continue
		}
		start := maxTime(c.StartTime, m.snap.Now)
		end := minTime(c.EndTime, deadline)
		if end.After(start) {
			total += end.Sub(start).Hours()
		}
	}
	return total
}

func (m *model) remainingHours(p storage.Project) float64 {
	product := storage.ProductByID(m.snap.Products, p.ProductID)
	if product == nil {
		return 0
	}
	preset := product.Preset(p.PreferredPresetID)
	if preset == nil || preset.UnitsPerPlate <= 0 {
		preset = product.RecommendedPreset()
	}
	if preset == nil {
		return 0
	}
	plates := math.Ceil(float64(p.RemainingUnits()) / float64(preset.UnitsPerPlate))
	return plates * preset.CycleHours
}

func multiplier(existing storage.Project, color string, existingDeadline, proposalDeadline time.Time) float64 {
	if !storage.SameColor(existing.Color, color) {
		return otherColorWeight
	}
	if !proposalDeadline.After(existingDeadline) {
		return sameColorEarlierWeight
	}
	return sameColorWeight
}

func (m *model) impactOnProjects(p Proposal, proposalDeadline time.Time, hoursNeeded float64) []ProjectImpact {
	type open struct {
		project  storage.Project
		deadline time.Time
		hours    float64
	}
	var projects []open
	for _, q := range m.snap.Projects {
		if !q.IsPlannable() || q.RemainingUnits() == 0 {
			continue
		}
		d, ok := q.Deadline(m.snap.Location)
		if !ok || !d.After(m.snap.Now) {
			continue
		}
		projects = append(projects, open{project: q, deadline: d, hours: m.remainingHours(q)})
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].deadline.Before(projects[j].deadline) })

	var out []ProjectImpact
	for _, q := range projects {
		preset := m.presetFor(q.project)
		if preset == nil {
			continue
		}
		demand := 0.0
		for _, other := range projects {
			if !other.deadline.After(q.deadline) {
				demand += other.hours
			}
		}
		slackBefore := m.capacityUntil(q.deadline, preset) - demand
		mult := multiplier(q.project, p.PreferredColor, q.deadline, proposalDeadline)
		slackAfter := slackBefore - hoursNeeded*mult

		if slackAfter >= m.cfg.SlackThresholdHours {
			continue
		}
		out = append(out, ProjectImpact{
			ProjectID:      q.project.ID,
			Name:           q.project.Name,
			DueDate:        q.project.DueDate,
			Multiplier:     mult,
			SlackBefore:    slackBefore,
			SlackAfter:     slackAfter,
			MissesDeadline: slackBefore >= 0 && slackAfter < 0,
		})
	}
	return out
}

func (m *model) presetFor(p storage.Project) *storage.PlatePreset {
	product := storage.ProductByID(m.snap.Products, p.ProductID)
	if product == nil {
		return nil
	}
	return product.RecommendedPreset()
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
