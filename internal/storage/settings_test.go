package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorySettings_Validate(t *testing.T) {
	require.NoError(t, DefaultSettings().Validate())

	tests := []struct {
		name   string
		mutate func(s *FactorySettings)
	}{
		{"missing weekday", func(s *FactorySettings) { delete(s.WeeklySchedule, "monday") }},
		{"bad start", func(s *FactorySettings) {
			s.WeeklySchedule["sunday"] = DaySchedule{Enabled: true, Start: "8am", End: "17:00"}
		}},
		{"unknown after hours", func(s *FactorySettings) { s.AfterHoursBehavior = "SOMETIMES" }},
		{"negative transition", func(s *FactorySettings) { s.TransitionMinutes = -1 }},
		{"urgent below critical", func(s *FactorySettings) { s.PriorityRules = PriorityRules{UrgentDaysThreshold: 3, CriticalDaysThreshold: 7} }},
		{"override ends before start", func(s *FactorySettings) {
			s.Overrides = []ScheduleOverride{{Name: "holiday", StartDate: "2026-04-10", EndDate: "2026-04-01"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidSettings)
		})
	}
}

func TestFactorySettings_ValidateOvernightAndDisabled(t *testing.T) {
	s := DefaultSettings()
	s.WeeklySchedule["monday"] = DaySchedule{Enabled: true, Start: "22:00", End: "06:00"}
	s.WeeklySchedule["tuesday"] = DaySchedule{Enabled: true, Start: "00:00", End: "24:00"}
	// disabled days are not parsed
	s.WeeklySchedule["friday"] = DaySchedule{Enabled: false, Start: "", End: ""}

	assert.NoError(t, s.Validate())
}
