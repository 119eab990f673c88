package storage

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidSettings = errors.New("invalid factory settings")

type AfterHoursBehavior string

const (
	AfterHoursNone           AfterHoursBehavior = "NONE"
	AfterHoursOneCycleEndDay AfterHoursBehavior = "ONE_CYCLE_END_OF_DAY"
	AfterHoursFullAutomation AfterHoursBehavior = "FULL_AUTOMATION"
)

type DaySchedule struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Start   string `json:"start" yaml:"start"`
	End     string `json:"end" yaml:"end"`
}

// WeeklySchedule is keyed by lowercase weekday name ("monday").
type WeeklySchedule map[string]DaySchedule

// ScheduleOverride replaces the weekly schedule for weekdays it lists within [StartDate, EndDate].
type ScheduleOverride struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	StartDate string         `json:"start_date"`
	EndDate   string         `json:"end_date"`
	Days      WeeklySchedule `json:"days"`
}

type PriorityRules struct {
	UrgentDaysThreshold   int `json:"urgent_days_threshold"`
	CriticalDaysThreshold int `json:"critical_days_threshold"`
}

type FactorySettings struct {
	WeeklySchedule     WeeklySchedule     `json:"weekly_schedule"`
	AfterHoursBehavior AfterHoursBehavior `json:"after_hours_behavior"`
	TransitionMinutes  int                `json:"transition_minutes"`
	PriorityRules      PriorityRules      `json:"priority_rules"`
	PlanningObjective  string             `json:"planning_objective"`
	Overrides          []ScheduleOverride `json:"overrides,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

func (s FactorySettings) Transition() time.Duration {
	return time.Duration(s.TransitionMinutes) * time.Minute
}

// DefaultSettings is what a workspace starts with before onboarding edits it.
func DefaultSettings() FactorySettings {
	workday := DaySchedule{Enabled: true, Start: "08:30", End: "17:30"}
	off := DaySchedule{Enabled: false, Start: "08:30", End: "17:30"}
	return FactorySettings{
		WeeklySchedule: WeeklySchedule{
			"sunday":    workday,
			"monday":    workday,
			"tuesday":   workday,
			"wednesday": workday,
			"thursday":  workday,
			"friday":    off,
			"saturday":  off,
		},
		AfterHoursBehavior: AfterHoursOneCycleEndDay,
		TransitionMinutes:  10,
		PriorityRules:      PriorityRules{UrgentDaysThreshold: 14, CriticalDaysThreshold: 7},
		PlanningObjective:  "deadline_first",
	}
}

var weekdays = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func validDay(name string, d DaySchedule) error {
	if !d.Enabled {
		return nil
	}
	if _, err := time.Parse("15:04", d.Start); err != nil {
		return fmt.Errorf("%s: start %q: %w", name, d.Start, ErrInvalidSettings)
	}
	// an end at or before the start runs past midnight
	if d.End == "24:00" {
		return nil
	}
	if _, err := time.Parse("15:04", d.End); err != nil {
		return fmt.Errorf("%s: end %q: %w", name, d.End, ErrInvalidSettings)
	}
	return nil
}

// Validate checks the settings an operator submits from the admin screen.
func (s FactorySettings) Validate() error {
	for _, day := range weekdays {
		d, ok := s.WeeklySchedule[day]
		if !ok {
			return fmt.Errorf("%s missing from weekly schedule: %w", day, ErrInvalidSettings)
		}
		if err := validDay(day, d); err != nil {
			return err
		}
	}
	switch s.AfterHoursBehavior {
	case AfterHoursNone, AfterHoursOneCycleEndDay, AfterHoursFullAutomation:
	default:
		return fmt.Errorf("after_hours_behavior %q: %w", s.AfterHoursBehavior, ErrInvalidSettings)
	}
	if s.TransitionMinutes < 0 {
		return fmt.Errorf("transition_minutes must not be negative: %w", ErrInvalidSettings)
	}
	if s.PriorityRules.CriticalDaysThreshold < 0 || s.PriorityRules.UrgentDaysThreshold < s.PriorityRules.CriticalDaysThreshold {
		return fmt.Errorf("priority rules: urgent threshold must cover critical: %w", ErrInvalidSettings)
	}
	for _, o := range s.Overrides {
		from, err := time.Parse(DateLayout, o.StartDate)
		if err != nil {
			return fmt.Errorf("override %s: start_date: %w", o.Name, ErrInvalidSettings)
		}
		to, err := time.Parse(DateLayout, o.EndDate)
		if err != nil || to.Before(from) {
			return fmt.Errorf("override %s: end_date: %w", o.Name, ErrInvalidSettings)
		}
		for day, d := range o.Days {
			if err := validDay(o.Name+" "+day, d); err != nil {
				return err
			}
		}
	}
	return nil
}
