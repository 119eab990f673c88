package planning

import (
	"math"
	"sort"
	"time"

	"printfarm/internal/storage"
)

// DaysUntilDue counts calendar days between today and the due date in loc. Negative when overdue.
func DaysUntilDue(p storage.Project, now time.Time, loc *time.Location) (int, bool) {
	due, err := time.ParseInLocation(storage.DateLayout, p.DueDate, loc)
	if err != nil {
		return 0, false
	}
	lt := now.In(loc)
	today := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	// DST days are 23 or 25 hours long.
	return int(math.Round(due.Sub(today).Hours() / 24)), true
}

// DeriveUrgency maps days-to-due onto urgency. Critical requires strictly fewer days than the critical
// threshold, urgent strictly fewer than the urgent threshold. A manual override always wins.
func DeriveUrgency(p storage.Project, rules storage.PriorityRules, now time.Time, loc *time.Location) storage.Urgency {
	if p.UrgencyManualOverride && p.Urgency != "" {
		return p.Urgency
	}
	days, ok := DaysUntilDue(p, now, loc)
	if !ok {
		if p.Urgency != "" {
			return p.Urgency
		}
		return storage.UrgencyNormal
	}
	switch {
	case days < rules.CriticalDaysThreshold:
		return storage.UrgencyCritical
	case days < rules.UrgentDaysThreshold:
		return storage.UrgencyUrgent
	default:
		return storage.UrgencyNormal
	}
}

type RankedProject struct {
	Project  storage.Project
	Urgency  storage.Urgency
	Deadline time.Time
	HasDue   bool
}

// RankProjects orders projects: urgency first, then nearest deadline, then most remaining units, then id.
func RankProjects(projects []storage.Project, rules storage.PriorityRules, now time.Time, loc *time.Location) []RankedProject {
	ranked := make([]RankedProject, 0, len(projects))
	for _, p := range projects {
		rp := RankedProject{Project: p, Urgency: DeriveUrgency(p, rules, now, loc)}
		rp.Deadline, rp.HasDue = p.Deadline(loc)
		ranked = append(ranked, rp)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Urgency.Rank() != b.Urgency.Rank() {
			return a.Urgency.Rank() < b.Urgency.Rank()
		}
		if a.HasDue != b.HasDue {
			return a.HasDue
		}
		if a.HasDue && !a.Deadline.Equal(b.Deadline) {
			return a.Deadline.Before(b.Deadline)
		}
		if ra, rb := a.Project.RemainingUnits(), b.Project.RemainingUnits(); ra != rb {
			return ra > rb
		}
		return a.Project.ID < b.Project.ID
	})
	return ranked
}

// RefreshUrgencies rewrites derived urgencies in place and returns how many changed.
func RefreshUrgencies(projects []storage.Project, rules storage.PriorityRules, now time.Time, loc *time.Location) int {
	changed := 0
	for i := range projects {
		u := DeriveUrgency(projects[i], rules, now, loc)
		if projects[i].Urgency != u {
			projects[i].Urgency = u
			changed++
		}
	}
	return changed
}
