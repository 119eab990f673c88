package planning

import (
	"sort"
	"time"

	"printfarm/internal/storage"
)

type CoverageStatus string

const (
	CoverageOnTrack     CoverageStatus = "on_track"
	CoverageAtRisk      CoverageStatus = "at_risk"
	CoverageUnscheduled CoverageStatus = "unscheduled"
)

type ProjectCoverage struct {
	ProjectID      string         `json:"project_id"`
	Status         CoverageStatus `json:"status"`
	RemainingUnits int            `json:"remaining_units"`
	PlannedUnits   int            `json:"planned_units"`
	UncoveredUnits int            `json:"uncovered_units"`
	LastCycleEnd   *time.Time     `json:"last_cycle_end,omitempty"`
}

// Coverage reports, per open project, how much of the remaining demand is covered by cycles finishing
// before the deadline. Units in cycles ending after the deadline count as uncovered.
func Coverage(projects []storage.Project, cycles []storage.PlannedCycle, loc *time.Location) []ProjectCoverage {
	byProject := map[string][]storage.PlannedCycle{}
	for _, c := range cycles {
		if c.Status == storage.CyclePlanned || c.Status == storage.CycleInProgress {
			byProject[c.ProjectID] = append(byProject[c.ProjectID], c)
		}
	}

	var out []ProjectCoverage
	for _, p := range projects {
		if p.Status == storage.ProjectCompleted {
			continue
		}
		cov := ProjectCoverage{ProjectID: p.ID, RemainingUnits: p.RemainingUnits()}
		deadline, hasDue := p.Deadline(loc)

		covered := 0
		for _, c := range byProject[p.ID] {
			cov.PlannedUnits += c.UnitsPlanned
			if !hasDue || !c.EndTime.After(deadline) {
				covered += c.UnitsPlanned
			}
			if cov.LastCycleEnd == nil || c.EndTime.After(*cov.LastCycleEnd) {
				end := c.EndTime
				cov.LastCycleEnd = &end
			}
		}

		cov.UncoveredUnits = cov.RemainingUnits - covered
		if cov.UncoveredUnits < 0 {
			cov.UncoveredUnits = 0
		}

		switch {
		case cov.RemainingUnits == 0 || cov.UncoveredUnits == 0:
			cov.Status = CoverageOnTrack
		case len(byProject[p.ID]) == 0:
			cov.Status = CoverageUnscheduled
		default:
			cov.Status = CoverageAtRisk
		}
		out = append(out, cov)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out
}

// CrossesDeadline reports whether a cycle ending at end finishes after the project's due day.
func CrossesDeadline(p storage.Project, end time.Time, loc *time.Location) bool {
	deadline, ok := p.Deadline(loc)
	return ok && end.After(deadline)
}
