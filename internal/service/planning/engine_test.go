package planning

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm/internal/storage"
)

type stubInventory map[string]float64

func (s stubInventory) AvailableGrams(color, material string) float64 {
	return s[storage.InventoryKey(color, material)]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine() *Engine {
	e := NewEngine(discardLogger())
	n := 0
	e.newID = func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}
	return e
}

func everyDay(start, end string) storage.WeeklySchedule {
	ws := storage.WeeklySchedule{}
	for _, d := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		ws[d] = storage.DaySchedule{Enabled: true, Start: start, End: end}
	}
	return ws
}

func settings(behavior storage.AfterHoursBehavior) storage.FactorySettings {
	return storage.FactorySettings{
		WeeklySchedule:     everyDay("08:00", "17:00"),
		AfterHoursBehavior: behavior,
		PriorityRules:      storage.PriorityRules{UrgentDaysThreshold: 14, CriticalDaysThreshold: 7},
	}
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.UTC)
}

func widget(cycleHours float64, nightOK bool) storage.Product {
	return storage.Product{
		ID:           "prod-1",
		Name:         "Widget",
		GramsPerUnit: 10,
		Presets: []storage.PlatePreset{{
			ID:                   "preset-1",
			UnitsPerPlate:        10,
			CycleHours:           cycleHours,
			RiskLevel:            storage.RiskLow,
			AllowedForNightCycle: nightOK,
			IsRecommended:        true,
		}},
	}
}

func project(id string, target int, due string) storage.Project {
	return storage.Project{
		ID:             id,
		Name:           id,
		ProductID:      "prod-1",
		QuantityTarget: target,
		DueDate:        due,
		Status:         storage.ProjectPending,
		Color:          "Black",
		Material:       "PLA",
	}
}

func printer(id string) storage.Printer {
	return storage.Printer{ID: id, Name: id, Status: storage.PrinterActive}
}

func plenty() stubInventory {
	return stubInventory{storage.InventoryKey("Black", "PLA"): 100000}
}

func TestGeneratePlan_FullPlatesThenCloseout(t *testing.T) {
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 10, 0),
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 25, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	require.Len(t, res.Cycles, 3)
	assert.Equal(t, storage.PlateFull, res.Cycles[0].PlateType)
	assert.Equal(t, at(2, 10, 0), res.Cycles[0].StartTime)
	assert.Equal(t, at(2, 12, 0), res.Cycles[0].EndTime)
	assert.Equal(t, at(2, 12, 0), res.Cycles[1].StartTime)
	assert.Equal(t, storage.PlateCloseout, res.Cycles[2].PlateType)
	assert.Equal(t, 5, res.Cycles[2].UnitsPlanned)
	assert.Equal(t, at(2, 15, 0), res.Cycles[2].EndTime)
	assert.Equal(t, 50.0, res.Cycles[2].RequiredGrams)
	assert.Empty(t, res.BlockingIssues)
	assert.Empty(t, res.UnscheduledUnits)
}

func TestGeneratePlan_NoCycleBeforeWindowStart(t *testing.T) {
	now := at(2, 10, 17)
	res := testEngine().GeneratePlan(Input{
		Now:       now,
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 40, "2026-03-20"), project("p2", 15, "2026-03-06")},
		Printers:  []storage.Printer{printer("pr1"), printer("pr2")},
		Products:  []storage.Product{widget(3, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	require.NotEmpty(t, res.Cycles)
	for _, c := range res.Cycles {
		assert.False(t, c.StartTime.Before(now), "cycle %s starts at %s", c.ID, c.StartTime)
	}
	// The more urgent project goes first.
	assert.Equal(t, "p2", res.Cycles[0].ProjectID)
}

func TestGeneratePlan_FromTomorrowStartsAtMidnight(t *testing.T) {
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 10, 0),
		Scope:     ScopeFromTomorrow,
		Projects:  []storage.Project{project("p1", 10, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	assert.Equal(t, at(3, 0, 0), res.WindowStart)
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, at(3, 8, 0), res.Cycles[0].StartTime)
}

func TestGeneratePlan_NoneKeepsCyclesInsideWindow(t *testing.T) {
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 8, 0),
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 30, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(8, true)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	require.NotEmpty(t, res.Cycles)
	for _, c := range res.Cycles {
		end := time.Date(c.StartTime.Year(), c.StartTime.Month(), c.StartTime.Day(), 17, 0, 0, 0, time.UTC)
		assert.False(t, c.EndTime.After(end), "cycle %s ends at %s", c.ID, c.EndTime)
		assert.False(t, c.Unattended)
	}
	// 08:00-16:00 full plate, then one unit fits into the last hour.
	assert.Equal(t, storage.PlateReduced, res.Cycles[1].PlateType)
	assert.Equal(t, 1, res.Cycles[1].UnitsPlanned)
}

func TestGeneratePlan_OneCycleEndOfDay(t *testing.T) {
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 8, 0),
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 30, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(8, true)},
		Settings:  settings(storage.AfterHoursOneCycleEndDay),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	require.Len(t, res.Cycles, 3)
	assert.Equal(t, at(2, 16, 0), res.Cycles[1].StartTime)
	assert.Equal(t, at(3, 0, 0), res.Cycles[1].EndTime)
	assert.True(t, res.Cycles[1].Unattended)
	assert.Equal(t, at(3, 8, 0), res.Cycles[2].StartTime)
}

func TestGeneratePlan_PlateCapacityDelaysNightStart(t *testing.T) {
	automated := printer("pr1")
	automated.CanStartNewCyclesAfterHours = true

	run := func(capacity int) Result {
		p := automated
		p.PhysicalPlateCapacity = capacity
		return testEngine().GeneratePlan(Input{
			Now:       at(2, 8, 0),
			Scope:     ScopeFromNow,
			Projects:  []storage.Project{project("p1", 30, "2026-03-20")},
			Printers:  []storage.Printer{p},
			Products:  []storage.Product{widget(8, true)},
			Settings:  settings(storage.AfterHoursFullAutomation),
			Inventory: plenty(),
			Location:  time.UTC,
		})
	}

	unlimited := run(0)
	require.Len(t, unlimited.Cycles, 3)
	assert.Equal(t, at(3, 0, 0), unlimited.Cycles[2].StartTime)
	assert.True(t, unlimited.Cycles[2].Unattended)

	single := run(1)
	require.Len(t, single.Cycles, 3)
	assert.Equal(t, at(3, 8, 0), single.Cycles[2].StartTime)
	require.NotNil(t, single.Cycles[1].PlateReleaseTime)
	assert.Equal(t, at(3, 8, 0), *single.Cycles[1].PlateReleaseTime)
}

func TestGeneratePlan_FullAutomationNightSlot(t *testing.T) {
	twoPresets := storage.Product{
		ID:           "prod-1",
		Name:         "Widget",
		GramsPerUnit: 10,
		Presets: []storage.PlatePreset{
			{ID: "dense", UnitsPerPlate: 10, CycleHours: 8, RiskLevel: storage.RiskHigh, AllowedForNightCycle: true, IsRecommended: true},
			{ID: "safe", UnitsPerPlate: 8, CycleHours: 8, RiskLevel: storage.RiskLow, AllowedForNightCycle: true},
		},
	}
	noNightSafe := twoPresets
	noNightSafe.Presets = []storage.PlatePreset{twoPresets.Presets[0], twoPresets.Presets[1]}
	noNightSafe.Presets[1].AllowedForNightCycle = false

	tests := []struct {
		name       string
		material   string
		preferred  string
		product    storage.Product
		wantStart  time.Time
		wantNight  bool
		wantPreset string
	}{
		{name: "PLA runs overnight", material: "PLA", product: widget(8, true), wantStart: at(3, 0, 0), wantNight: true, wantPreset: "preset-1"},
		{name: "lower case PETG runs overnight", material: "petg", product: widget(8, true), wantStart: at(3, 0, 0), wantNight: true, wantPreset: "preset-1"},
		{name: "ABS waits for the shift", material: "ABS", product: widget(8, true), wantStart: at(3, 8, 0), wantPreset: "preset-1"},
		{name: "TPU waits for the shift", material: "TPU", product: widget(8, true), wantStart: at(3, 8, 0), wantPreset: "preset-1"},
		{name: "lowest risk preset at night", material: "PLA", product: twoPresets, wantStart: at(3, 0, 0), wantNight: true, wantPreset: "safe"},
		{name: "preferred preset beats risk", material: "PLA", preferred: "dense", product: twoPresets, wantStart: at(3, 0, 0), wantNight: true, wantPreset: "dense"},
		{name: "night-disallowed preset skipped", material: "PLA", product: noNightSafe, wantStart: at(3, 0, 0), wantNight: true, wantPreset: "dense"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			automated := printer("pr1")
			automated.CanStartNewCyclesAfterHours = true
			p := project("p1", 30, "2026-03-20")
			p.Material = tt.material
			p.PreferredPresetID = tt.preferred

			res := testEngine().GeneratePlan(Input{
				Now:       at(2, 8, 0),
				Scope:     ScopeFromNow,
				Projects:  []storage.Project{p},
				Printers:  []storage.Printer{automated},
				Products:  []storage.Product{tt.product},
				Settings:  settings(storage.AfterHoursFullAutomation),
				Inventory: stubInventory{storage.InventoryKey("Black", tt.material): 100000},
				Location:  time.UTC,
			})

			require.GreaterOrEqual(t, len(res.Cycles), 3)
			third := res.Cycles[2]
			assert.Equal(t, tt.wantStart, third.StartTime)
			assert.Equal(t, tt.wantNight, third.Unattended)
			assert.Equal(t, tt.wantPreset, third.PresetID)
		})
	}
}

func TestGeneratePlan_RespectsBusyPrinter(t *testing.T) {
	busy := storage.PlannedCycle{
		ID:        "running",
		ProjectID: "p0",
		PrinterID: "pr1",
		StartTime: at(2, 9, 0),
		EndTime:   at(2, 13, 0),
		Status:    storage.CycleInProgress,
	}
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 10, 0),
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 10, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Existing:  []storage.PlannedCycle{busy},
		Location:  time.UTC,
	})

	require.Len(t, res.Cycles, 1)
	assert.False(t, res.Cycles[0].StartTime.Before(busy.EndTime))
}

func TestGeneratePlan_MaterialShortageBlocksOnce(t *testing.T) {
	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 8, 0),
		Scope:     ScopeFromNow,
		Projects:  []storage.Project{project("p1", 50, "2026-03-20")},
		Printers:  []storage.Printer{printer("pr1"), printer("pr2")},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: stubInventory{storage.InventoryKey("Black", "PLA"): 50},
		Location:  time.UTC,
	})

	require.Len(t, res.Cycles, 1)
	assert.Equal(t, storage.BlockedInventory, res.Cycles[0].ReadinessState)
	require.Len(t, res.BlockingIssues, 1)
	assert.Equal(t, IssueMaterialShortage, res.BlockingIssues[0].Kind)
	assert.Equal(t, 50.0, res.BlockingIssues[0].GramsAvailable)
	assert.Equal(t, 40, res.UnscheduledUnits["p1"])
}

func TestGeneratePlan_NoActivePrinters(t *testing.T) {
	off := printer("pr1")
	off.Status = storage.PrinterOutOfService

	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 8, 0),
		Projects:  []storage.Project{project("p1", 10, "2026-03-20")},
		Printers:  []storage.Printer{off},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	assert.Empty(t, res.Cycles)
	require.Len(t, res.BlockingIssues, 1)
	assert.Equal(t, IssueNoPrinters, res.BlockingIssues[0].Kind)
}

func TestGeneratePlan_UnknownProduct(t *testing.T) {
	p := project("p1", 10, "2026-03-20")
	p.ProductID = "missing"

	res := testEngine().GeneratePlan(Input{
		Now:       at(2, 8, 0),
		Projects:  []storage.Project{p},
		Printers:  []storage.Printer{printer("pr1")},
		Products:  []storage.Product{widget(2, false)},
		Settings:  settings(storage.AfterHoursNone),
		Inventory: plenty(),
		Location:  time.UTC,
	})

	assert.Empty(t, res.Cycles)
	require.Len(t, res.BlockingIssues, 1)
	assert.Equal(t, IssueUnknownProduct, res.BlockingIssues[0].Kind)
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeFromNow, s)

	s, err = ParseScope("whole_week")
	require.NoError(t, err)
	assert.Equal(t, ScopeWholeWeek, s)

	_, err = ParseScope("forever")
	assert.Error(t, err)
}
