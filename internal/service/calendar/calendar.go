package calendar

import (
	"fmt"
	"strings"
	"time"

	"printfarm/internal/storage"
)

// searchDays bounds lookups for the next enabled day.
const searchDays = 14

// Window is the effective work window of a single day.
type Window struct {
	Enabled bool
	Start   time.Time
	End     time.Time
}

func (w Window) Hours() float64 {
	if !w.Enabled {
		return 0
	}
	return w.End.Sub(w.Start).Hours()
}

func (w Window) Contains(t time.Time) bool {
	return w.Enabled && !t.Before(w.Start) && t.Before(w.End)
}

// ScheduleForDate resolves the day schedule: a temporary override covering the date wins over the weekly entry.
func ScheduleForDate(date time.Time, settings *storage.FactorySettings, overrides []storage.ScheduleOverride) *storage.DaySchedule {
	if settings == nil {
		return nil
	}

	day := weekdayKey(date)
	ymd := date.Format(storage.DateLayout)

	for _, o := range overrides {
		if o.StartDate == "" || o.EndDate == "" {
			continue
		}
		if ymd < o.StartDate || ymd > o.EndDate {
			continue
		}
		if sched, ok := o.Days[day]; ok {
			return &sched
		}
	}

	sched, ok := settings.WeeklySchedule[day]
	if !ok {
		return &storage.DaySchedule{Enabled: false}
	}
	return &sched
}

// Resolver binds settings and a location so the planner can ask for windows by instant.
type Resolver struct {
	settings *storage.FactorySettings
	loc      *time.Location
}

func NewResolver(settings *storage.FactorySettings, loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{settings: settings, loc: loc}
}

func (r *Resolver) Location() *time.Location {
	return r.loc
}

// DayStart returns local midnight of the day containing t.
func (r *Resolver) DayStart(t time.Time) time.Time {
	lt := t.In(r.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, r.loc)
}

// WindowFor returns the work window of the day containing t.
func (r *Resolver) WindowFor(t time.Time) Window {
	day := r.DayStart(t)
	var overrides []storage.ScheduleOverride
	if r.settings != nil {
		overrides = r.settings.Overrides
	}
	sched := ScheduleForDate(day, r.settings, overrides)
	if sched == nil || !sched.Enabled {
		return Window{Start: day, End: day}
	}

	start, err := clockOn(day, sched.Start)
	if err != nil {
		return Window{Start: day, End: day}
	}
	end, err := clockOn(day, sched.End)
	if err != nil {
		return Window{Start: day, End: day}
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return Window{Enabled: true, Start: start, End: end}
}

// NextWindowStart returns the start of the first enabled window whose start is at or after t.
func (r *Resolver) NextWindowStart(t time.Time) (time.Time, bool) {
	day := r.DayStart(t)
	for i := 0; i <= searchDays; i++ {
		w := r.WindowFor(day.AddDate(0, 0, i))
		if w.Enabled && !w.Start.Before(t) {
			return w.Start, true
		}
	}
	return time.Time{}, false
}

// EarliestStart returns the first instant at or after t a cycle may start: t itself inside the work
// window or when unattended starts are allowed, otherwise the next window start.
func (r *Resolver) EarliestStart(t time.Time, unattended bool) (time.Time, bool) {
	if unattended || r.WindowFor(t).Contains(t) {
		return t, true
	}
	return r.NextWindowStart(t)
}

// IsWorkTime reports whether t falls inside the work window of its day.
func (r *Resolver) IsWorkTime(t time.Time) bool {
	return r.WindowFor(t).Contains(t)
}

// RemainingWorkHoursToday counts work hours between now and the end of today's window.
func (r *Resolver) RemainingWorkHoursToday(now time.Time) float64 {
	w := r.WindowFor(now)
	if !w.Enabled || !now.Before(w.End) {
		return 0
	}
	from := now
	if from.Before(w.Start) {
		from = w.Start
	}
	return w.End.Sub(from).Hours()
}

// WorkHoursBetween sums enabled work-window hours overlapping [from, to).
func (r *Resolver) WorkHoursBetween(from, to time.Time) float64 {
	if !to.After(from) {
		return 0
	}
	total := 0.0
	for day := r.DayStart(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		w := r.WindowFor(day)
		if !w.Enabled {
			continue
		}
		s, e := w.Start, w.End
		if s.Before(from) {
			s = from
		}
		if e.After(to) {
			e = to
		}
		if e.After(s) {
			total += e.Sub(s).Hours()
		}
	}
	return total
}

// EnabledDaysBetween counts days with an enabled window in [from, to).
func (r *Resolver) EnabledDaysBetween(from, to time.Time) int {
	n := 0
	for day := r.DayStart(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		if r.WindowFor(day).Enabled {
			n++
		}
	}
	return n
}

func weekdayKey(t time.Time) string {
	return strings.ToLower(t.Weekday().String())
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	if hhmm == "24:00" {
		return day.AddDate(0, 0, 1), nil
	}
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: invalid time %q: %w", hhmm, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}
