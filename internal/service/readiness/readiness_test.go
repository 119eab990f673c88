package readiness

import (
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

var base = time.Date(2025, 1, 13, 9, 0, 0, 0, time.UTC)

func cycle(id, printer, color string, hour int, grams float64) storage.PlannedCycle {
	return storage.PlannedCycle{
		ID:               id,
		ProjectID:        "proj-" + color,
		PrinterID:        printer,
		Status:           storage.CyclePlanned,
		StartTime:        base.Add(time.Duration(hour) * time.Hour),
		EndTime:          base.Add(time.Duration(hour+2) * time.Hour),
		RequiredColor:    color,
		RequiredMaterial: "PLA",
		RequiredGrams:    grams,
	}
}

func byID(cycles []storage.PlannedCycle, id string) storage.PlannedCycle {
	return *storage.CycleByID(cycles, id)
}

func TestClassify_SequenceSharesLoadedColor(t *testing.T) {
	printers := []storage.Printer{{ID: "P1", Status: storage.PrinterActive, MountedColor: "Black", MountedMaterial: "PLA"}}
	inv := stubInventory{
		storage.InventoryKey("Black", "PLA"): 5000,
		storage.InventoryKey("White", "PLA"): 5000,
	}
	cycles := []storage.PlannedCycle{
		cycle("c1", "P1", "Black", 0, 100),
		cycle("c2", "P1", "Black", 2, 100),
		cycle("c3", "P1", "White", 4, 100),
		cycle("c4", "P1", "Black", 6, 100),
	}

	out := Classify(cycles, printers, inv)

	assert.Equal(t, storage.ReadyToStart, byID(out, "c1").ReadinessState)
	assert.Equal(t, storage.ReadyToStart, byID(out, "c2").ReadinessState)
	assert.Equal(t, storage.WaitingForSpool, byID(out, "c3").ReadinessState)
	assert.Equal(t, storage.WaitingForSpool, byID(out, "c4").ReadinessState, "a color swap happened before it")
}

func TestClassify_InventoryStates(t *testing.T) {
	printers := []storage.Printer{
		{ID: "P1", Status: storage.PrinterActive, MountedColor: "Red", MountedMaterial: "PLA"},
		{ID: "P2", Status: storage.PrinterActive, MountedColor: "Blue", MountedMaterial: "PLA"},
	}
	inv := stubInventory{
		storage.InventoryKey("Blue", "PLA"): 150,
	}
	cycles := []storage.PlannedCycle{
		cycle("red", "P1", "Red", 0, 100),
		cycle("blue1", "P2", "Blue", 0, 100),
		cycle("blue2", "P2", "Blue", 2, 100),
	}

	out := Classify(cycles, printers, inv)

	assert.Equal(t, storage.BlockedInventory, byID(out, "red").ReadinessState)
	assert.Equal(t, storage.ReadyToStart, byID(out, "blue1").ReadinessState)
	assert.Equal(t, storage.WaitingForSpool, byID(out, "blue2").ReadinessState)
	assert.Contains(t, byID(out, "blue2").ReadinessDetails, "shortage")
}

func TestClassify_PlatesFull(t *testing.T) {
	printers := []storage.Printer{{
		ID: "P1", Status: storage.PrinterActive, MountedColor: "Black", MountedMaterial: "PLA",
		PhysicalPlateCapacity: 3, OccupiedPlates: 3,
	}}
	inv := stubInventory{storage.InventoryKey("Black", "PLA"): 5000}

	out := Classify([]storage.PlannedCycle{cycle("c1", "P1", "Black", 0, 100)}, printers, inv)
	assert.Equal(t, storage.WaitingForPlateReload, out[0].ReadinessState)
}

func TestClassify_LeavesNonPlannedAlone(t *testing.T) {
	done := cycle("done", "P1", "Black", 0, 100)
	done.Status = storage.CycleCompleted
	done.ReadinessState = storage.ReadyToStart

	out := Classify([]storage.PlannedCycle{done}, nil, stubInventory{})
	assert.Equal(t, storage.ReadyToStart, out[0].ReadinessState)
}

func TestLoadRecommendations_FirstNotReadyOnly(t *testing.T) {
	printers := []storage.Printer{
		{ID: "P1", Status: storage.PrinterActive},
		{ID: "P2", Status: storage.PrinterActive},
		{ID: "P3", Status: storage.PrinterOutOfService},
	}
	inv := stubInventory{storage.InventoryKey("White", "PLA"): 2000}

	c1 := cycle("c1", "P1", "White", 0, 100)
	c1.ReadinessState = storage.WaitingForSpool
	c2 := cycle("c2", "P1", "Green", 2, 100)
	c2.ReadinessState = storage.BlockedInventory

	running := cycle("run", "P2", "White", 0, 100)
	running.Status = storage.CycleInProgress
	queued := cycle("q", "P2", "White", 3, 100)
	queued.ReadinessState = storage.WaitingForSpool

	other := cycle("p3", "P3", "White", 0, 100)
	other.ReadinessState = storage.WaitingForSpool

	actions := LoadRecommendations([]storage.PlannedCycle{c2, c1, running, queued, other}, printers, inv)

	require.Len(t, actions, 1)
	assert.Equal(t, "c1", actions[0].CycleID)
	assert.Equal(t, ActionLoadSpool, actions[0].Kind)
	assert.False(t, actions[0].Shortage)
}

func TestApplyMountAndPromote(t *testing.T) {
	c1 := cycle("c1", "P1", "White", 0, 100)
	c1.ReadinessState = storage.WaitingForSpool
	c1.ProjectID = "proj-1"
	c2 := cycle("c2", "P1", "Black", 2, 100)
	c2.ReadinessState = storage.WaitingForSpool
	c3 := cycle("c3", "P2", "White", 0, 100)
	c3.ReadinessState = storage.WaitingForSpool
	cycles := []storage.PlannedCycle{c1, c2, c3}

	printer := storage.Printer{ID: "P1", MountedColor: "White", MountedMaterial: "PLA"}
	assert.Equal(t, 1, ApplyMount(printer, cycles))
	assert.Equal(t, storage.ReadyToStart, cycles[0].ReadinessState)
	assert.Equal(t, storage.WaitingForSpool, cycles[1].ReadinessState)
	assert.Equal(t, storage.WaitingForSpool, cycles[2].ReadinessState)

	projects := []storage.Project{
		{ID: "proj-1", Status: storage.ProjectPending},
		{ID: "proj-Black", Status: storage.ProjectPending},
	}
	promoted := PromoteProjects(projects, cycles)
	assert.Equal(t, []string{"proj-1"}, promoted)
	assert.Equal(t, storage.ProjectInProgress, projects[0].Status)
	assert.Equal(t, storage.ProjectPending, projects[1].Status)
}
