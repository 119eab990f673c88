package impact

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"printfarm/internal/service/calendar"
	"printfarm/internal/storage"
)

type Option string

const (
	CompleteNow     Option = "complete_now"
	DeferToLater    Option = "defer_to_later"
	MergeWithFuture Option = "merge_with_future"
	Ignore          Option = "ignore"
)

func ParseOption(s string) (Option, error) {
	switch Option(s) {
	case CompleteNow, DeferToLater, MergeWithFuture, Ignore:
		return Option(s), nil
	}
	return "", fmt.Errorf("unknown decision option %q", s)
}

type Recommendation string

const (
	Recommended    Recommendation = "recommended"
	Neutral        Recommendation = "neutral"
	NotRecommended Recommendation = "not_recommended"
)

type RiskTier string

const (
	RiskCritical RiskTier = "critical"
	RiskHigh     RiskTier = "high"
	RiskMedium   RiskTier = "medium"
	RiskLow      RiskTier = "low"
)

type RejectReason string

const (
	RejectNotPlanned       RejectReason = "not_planned"
	RejectNotFuture        RejectReason = "not_future"
	RejectDifferentProject RejectReason = "different_project"
	RejectCloseout         RejectReason = "closeout"
	RejectNoCapacity       RejectReason = "no_capacity"
	RejectCapReached       RejectReason = "cap_reached"
)

type Config struct {
	MaxDominoHops      int
	MaxMergeCandidates int
	MinMeaningfulDelay time.Duration
}

func DefaultConfig() Config {
	return Config{MaxDominoHops: 5, MaxMergeCandidates: 3, MinMeaningfulDelay: 6 * time.Minute}
}

// FailureEvent describes units lost on a project, optionally tied to the cycle and printer it happened on.
type FailureEvent struct {
	ProjectID  string `json:"project_id"`
	CycleID    string `json:"cycle_id,omitempty"`
	PrinterID  string `json:"printer_id,omitempty"`
	UnitsScrap int    `json:"units_scrap"`
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

type PushedCycle struct {
	CycleID         string        `json:"cycle_id"`
	ProjectID       string        `json:"project_id"`
	OriginalStart   time.Time     `json:"original_start"`
	OriginalEnd     time.Time     `json:"original_end"`
	NewStart        time.Time     `json:"new_start"`
	NewEnd          time.Time     `json:"new_end"`
	Push            time.Duration `json:"push"`
	CrossesDeadline bool          `json:"crosses_deadline"`
}

type Domino struct {
	PrinterID         string        `json:"printer_id"`
	Pushed            []PushedCycle `json:"pushed"`
	DeadlineCrossings int           `json:"deadline_crossings"`
	Truncated         bool          `json:"truncated"`
}

type RejectedCandidate struct {
	CycleID string       `json:"cycle_id"`
	Reason  RejectReason `json:"reason"`
}

type MergeCandidate struct {
	CycleID    string    `json:"cycle_id"`
	PrinterID  string    `json:"printer_id"`
	StartTime  time.Time `json:"start_time"`
	SpareUnits int       `json:"spare_units"`
}

type OptionImpact struct {
	Kind           Option         `json:"option"`
	Recommendation Recommendation `json:"recommendation"`
	Summary        string         `json:"summary"`
	IsEstimate     bool           `json:"is_estimate"`

	PrinterID string     `json:"printer_id,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Hours     float64    `json:"hours,omitempty"`
	Domino    *Domino    `json:"domino,omitempty"`

	Risk           RiskTier `json:"risk,omitempty"`
	AvailableHours float64  `json:"available_hours,omitempty"`
	SlackHours     float64  `json:"slack_hours,omitempty"`

	MergeTargetCycleID string              `json:"merge_target_cycle_id,omitempty"`
	AbsorbedUnits      int                 `json:"absorbed_units,omitempty"`
	Candidates         []MergeCandidate    `json:"candidates,omitempty"`
	Rejected           []RejectedCandidate `json:"rejected,omitempty"`
	CandidatesCapped   bool                `json:"candidates_capped,omitempty"`

	MayRemainShort bool `json:"may_remain_short,omitempty"`
}

type Analysis struct {
	Event      FailureEvent   `json:"event"`
	Options    []OptionImpact `json:"options"`
	IsEstimate bool           `json:"is_estimate"`
}

func (a Analysis) Option(kind Option) *OptionImpact {
	for i := range a.Options {
		if a.Options[i].Kind == kind {
			return &a.Options[i]
		}
	}
	return nil
}

type Analyzer struct {
	log *slog.Logger
	cfg Config
}

func NewAnalyzer(log *slog.Logger, cfg Config) *Analyzer {
	def := DefaultConfig()
	if cfg.MaxDominoHops <= 0 {
		cfg.MaxDominoHops = def.MaxDominoHops
	}
	if cfg.MaxMergeCandidates <= 0 {
		cfg.MaxMergeCandidates = def.MaxMergeCandidates
	}
	if cfg.MinMeaningfulDelay <= 0 {
		cfg.MinMeaningfulDelay = def.MinMeaningfulDelay
	}
	return &Analyzer{log: log, cfg: cfg}
}

// Analyze simulates every decision option for a failure. It reads the snapshot only.
func (a *Analyzer) Analyze(snap Snapshot, ev FailureEvent) (Analysis, error) {
	const op = "impact.Analyze"

	if snap.Location == nil {
		snap.Location = time.Local
	}
	project := storage.ProjectByID(snap.Projects, ev.ProjectID)
	if project == nil {
		return Analysis{}, fmt.Errorf("%s: %w", op, storage.ErrProjectNotFound)
	}
	product := storage.ProductByID(snap.Products, project.ProductID)
	if product == nil {
		return Analysis{}, fmt.Errorf("%s: %w", op, storage.ErrProductNotFound)
	}
	if ev.UnitsScrap <= 0 {
		return Analysis{}, fmt.Errorf("%s: units_scrap must be positive", op)
	}

	preset := product.Preset(project.PreferredPresetID)
	if preset == nil || preset.UnitsPerPlate <= 0 {
		preset = product.RecommendedPreset()
	}
	if preset == nil {
		return Analysis{}, fmt.Errorf("%s: product %s has no usable preset", op, product.ID)
	}

	s := &sim{cfg: a.cfg, snap: snap, project: *project, product: *product, preset: *preset, res: calendar.NewResolver(&snap.Settings, snap.Location)}

	out := Analysis{Event: ev, IsEstimate: true}
	out.Options = append(out.Options,
		s.completeNow(ev),
		s.deferToLater(ev),
		s.mergeWithFuture(ev),
		s.ignore(ev),
	)

	a.log.Debug("impact analyzed",
		slog.String("op", op),
		slog.String("project_id", ev.ProjectID),
		slog.Int("units_scrap", ev.UnitsScrap),
	)
	return out, nil
}

type sim struct {
	cfg     Config
	snap    Snapshot
	project storage.Project
	product storage.Product
	preset  storage.PlatePreset
	res     *calendar.Resolver
}

func (s *sim) hoursFor(units int, preset storage.PlatePreset) float64 {
	return preset.CycleHours * float64(units) / float64(preset.UnitsPerPlate)
}

func (s *sim) crosses(projectID string, end time.Time) bool {
	p := storage.ProjectByID(s.snap.Projects, projectID)
	if p == nil {
		return false
	}
	deadline, ok := p.Deadline(s.snap.Location)
	return ok && end.After(deadline)
}

// busyUntil is when the printer finishes its current in-progress cycle, or now when idle.
func (s *sim) busyUntil(printerID string) time.Time {
	t := s.snap.Now
	for _, c := range s.snap.Cycles {
		if c.PrinterID == printerID && c.Status == storage.CycleInProgress && c.EndTime.After(t) {
			t = c.EndTime
		}
	}
	return t
}

func (s *sim) futurePlanned(printerID string, from time.Time) []storage.PlannedCycle {
	var out []storage.PlannedCycle
	for _, c := range s.snap.Cycles {
		if c.PrinterID == printerID && c.Status == storage.CyclePlanned && !c.StartTime.Before(from) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// chain walks the cycles in order, starting each at max(previous new end, original start + delay).
// It stops at the first cycle pushed by less than the meaningful threshold or after the hop cap.
func (s *sim) chain(printerID string, cycles []storage.PlannedCycle, prevEnd time.Time, delay time.Duration) *Domino {
	d := &Domino{PrinterID: printerID}
	transition := s.snap.Settings.Transition()

	for _, c := range cycles {
		if len(d.Pushed) >= s.cfg.MaxDominoHops {
			d.Truncated = true
			break
		}
		newStart := c.StartTime.Add(delay)
		if after := prevEnd.Add(transition); after.After(newStart) {
			newStart = after
		}
		push := newStart.Sub(c.StartTime)
		if push < s.cfg.MinMeaningfulDelay {
			break
		}
		newEnd := newStart.Add(c.Duration())
		pc := PushedCycle{
			CycleID:         c.ID,
			ProjectID:       c.ProjectID,
			OriginalStart:   c.StartTime,
			OriginalEnd:     c.EndTime,
			NewStart:        newStart,
			NewEnd:          newEnd,
			Push:            push,
			CrossesDeadline: s.crosses(c.ProjectID, newEnd) && !s.crosses(c.ProjectID, c.EndTime),
		}
		if pc.CrossesDeadline {
			d.DeadlineCrossings++
		}
		d.Pushed = append(d.Pushed, pc)
		prevEnd = newEnd
	}
	return d
}

func (s *sim) soonestPrinter() (storage.Printer, time.Time, bool) {
	var best storage.Printer
	var bestAt time.Time
	found := false
	for _, p := range s.snap.Printers {
		if !p.IsActive() {
			continue
		}
		at := s.busyUntil(p.ID)
		better := !found || at.Before(bestAt)
		if found && at.Equal(bestAt) {
			loadedP := p.HasColorLoaded(s.project.Color, s.project.Material)
			loadedB := best.HasColorLoaded(s.project.Color, s.project.Material)
			better = (loadedP && !loadedB) || (loadedP == loadedB && p.ID < best.ID)
		}
		if better {
			best, bestAt, found = p, at, true
		}
	}
	return best, bestAt, found
}

func (s *sim) completeNow(ev FailureEvent) OptionImpact {
	oi := OptionImpact{Kind: CompleteNow, IsEstimate: true}

	printer, free, ok := s.soonestPrinter()
	if !ok {
		oi.Recommendation = NotRecommended
		oi.Summary = "no active printer can take the recovery units"
		return oi
	}
	unattended := s.snap.Settings.AfterHoursBehavior == storage.AfterHoursFullAutomation && printer.CanStartNewCyclesAfterHours
	start, ok := s.res.EarliestStart(free, unattended)
	if !ok {
		oi.Recommendation = NotRecommended
		oi.Summary = "no work window ahead to start the recovery units"
		return oi
	}

	hours := s.hoursFor(ev.UnitsScrap, s.preset)
	end := start.Add(hoursDuration(hours))
	delay := end.Sub(start) + s.snap.Settings.Transition()

	oi.PrinterID = printer.ID
	oi.StartTime, oi.EndTime = &start, &end
	oi.Hours = hours
	oi.Domino = s.chain(printer.ID, s.futurePlanned(printer.ID, start), end, delay)

	switch {
	case oi.Domino.DeadlineCrossings > 0:
		oi.Recommendation = NotRecommended
		oi.Summary = fmt.Sprintf("reprint on %s pushes %d cycles, %d past their deadline", printer.Name, len(oi.Domino.Pushed), oi.Domino.DeadlineCrossings)
	case len(oi.Domino.Pushed) < 2:
		oi.Recommendation = Recommended
		oi.Summary = fmt.Sprintf("reprint on %s now, %d cycles shift", printer.Name, len(oi.Domino.Pushed))
	default:
		oi.Recommendation = Neutral
		oi.Summary = fmt.Sprintf("reprint on %s now, %d cycles shift without missing deadlines", printer.Name, len(oi.Domino.Pushed))
	}
	return oi
}

func (s *sim) deferToLater(ev FailureEvent) OptionImpact {
	oi := OptionImpact{Kind: DeferToLater, IsEstimate: true}

	var printerID string
	var landing time.Time
	found := false
	for _, p := range s.snap.Printers {
		if !p.IsActive() {
			continue
		}
		last := s.busyUntil(p.ID)
		for _, c := range s.snap.Cycles {
			if c.PrinterID == p.ID && c.Status == storage.CyclePlanned && c.EndTime.After(last) {
				last = c.EndTime
			}
		}
		if !found || last.Before(landing) || (last.Equal(landing) && p.ID < printerID) {
			printerID, landing, found = p.ID, last, true
		}
	}
	if !found {
		oi.Recommendation = NotRecommended
		oi.Risk = RiskCritical
		oi.Summary = "no active printer to defer the recovery units to"
		return oi
	}

	start := landing.Add(s.snap.Settings.Transition())
	hours := s.hoursFor(ev.UnitsScrap, s.preset)
	end := start.Add(hoursDuration(hours))
	oi.PrinterID = printerID
	oi.StartTime, oi.EndTime = &start, &end
	oi.Hours = hours

	deadline, hasDue := s.project.Deadline(s.snap.Location)
	if !hasDue {
		oi.Risk = RiskLow
		oi.Recommendation = Recommended
		oi.Summary = "project has no due date, deferring is safe"
		return oi
	}

	oi.AvailableHours = s.res.WorkHoursBetween(start, deadline)
	oi.SlackHours = oi.AvailableHours - hours
	oi.Risk = slackTier(end.After(deadline), oi.AvailableHours, hours)

	switch oi.Risk {
	case RiskLow:
		oi.Recommendation = Recommended
	case RiskMedium:
		oi.Recommendation = Neutral
	default:
		oi.Recommendation = NotRecommended
	}
	oi.Summary = fmt.Sprintf("deferred reprint lands %s, %.1fh slack (%s risk)", start.In(s.snap.Location).Format("Mon 15:04"), oi.SlackHours, oi.Risk)
	return oi
}

func slackTier(missesDeadline bool, available, needed float64) RiskTier {
	if missesDeadline || available < needed {
		return RiskCritical
	}
	if needed <= 0 {
		return RiskLow
	}
	ratio := available / needed
	switch {
	case ratio < 1.5:
		return RiskHigh
	case ratio < 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

func (s *sim) mergeWithFuture(ev FailureEvent) OptionImpact {
	oi := OptionImpact{Kind: MergeWithFuture, IsEstimate: true}
	maxUnits := s.product.MaxUnitsPerPlate()

	sorted := append([]storage.PlannedCycle(nil), s.snap.Cycles...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

	var picked []storage.PlannedCycle
	for _, c := range sorted {
		reason := RejectReason("")
		switch {
		case c.Status != storage.CyclePlanned:
			reason = RejectNotPlanned
		case !c.StartTime.After(s.snap.Now):
			reason = RejectNotFuture
		case c.ProjectID != s.project.ID:
			reason = RejectDifferentProject
		case c.PlateType == storage.PlateCloseout:
			reason = RejectCloseout
		case c.UnitsPlanned >= maxUnits:
			reason = RejectNoCapacity
		case len(picked) >= s.cfg.MaxMergeCandidates:
			reason = RejectCapReached
			oi.CandidatesCapped = true
		}
		if reason != "" {
			oi.Rejected = append(oi.Rejected, RejectedCandidate{CycleID: c.ID, Reason: reason})
			continue
		}
		picked = append(picked, c)
		oi.Candidates = append(oi.Candidates, MergeCandidate{
			CycleID:    c.ID,
			PrinterID:  c.PrinterID,
			StartTime:  c.StartTime,
			SpareUnits: maxUnits - c.UnitsPlanned,
		})
	}

	if len(picked) == 0 {
		oi.Recommendation = NotRecommended
		oi.Summary = "no future cycle of this project has spare plate capacity"
		return oi
	}

	target := picked[0]
	absorbed := ev.UnitsScrap
	if spare := maxUnits - target.UnitsPlanned; absorbed > spare {
		absorbed = spare
	}

	preset := s.preset
	if p := s.product.Preset(target.PresetID); p != nil && p.UnitsPerPlate > 0 {
		preset = *p
	}
	extra := s.hoursFor(absorbed, preset)
	newEnd := target.EndTime.Add(hoursDuration(extra))

	oi.MergeTargetCycleID = target.ID
	oi.AbsorbedUnits = absorbed
	oi.PrinterID = target.PrinterID
	oi.StartTime, oi.EndTime = &target.StartTime, &newEnd
	oi.Hours = extra
	oi.Domino = s.chain(target.PrinterID, s.futurePlanned(target.PrinterID, target.StartTime.Add(time.Nanosecond)), newEnd, hoursDuration(extra))

	targetCrosses := s.crosses(target.ProjectID, newEnd) && !s.crosses(target.ProjectID, target.EndTime)
	short := absorbed < ev.UnitsScrap
	oi.MayRemainShort = short

	switch {
	case targetCrosses || oi.Domino.DeadlineCrossings > 0:
		oi.Recommendation = NotRecommended
	case short:
		oi.Recommendation = Neutral
	case len(oi.Domino.Pushed) < 2:
		oi.Recommendation = Recommended
	default:
		oi.Recommendation = Neutral
	}
	oi.Summary = fmt.Sprintf("add %d of %d units to cycle %s (+%.1fh), %d later cycles shift", absorbed, ev.UnitsScrap, target.ID, extra, len(oi.Domino.Pushed))
	return oi
}

func (s *sim) ignore(ev FailureEvent) OptionImpact {
	return OptionImpact{
		Kind:           Ignore,
		IsEstimate:     true,
		Recommendation: NotRecommended,
		MayRemainShort: true,
		Summary:        fmt.Sprintf("record %d scrapped units without a reprint, the project may end short", ev.UnitsScrap),
	}
}

func hoursDuration(h float64) time.Duration {
	return time.Duration(math.Round(h * float64(time.Hour)))
}
