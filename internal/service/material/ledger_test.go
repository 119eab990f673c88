package material

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm/internal/storage"
)

func blackPLA() storage.ColorInventoryItem {
	return storage.ColorInventoryItem{
		ID:                   "inv-1",
		Color:                "Black",
		Material:             "PLA",
		ClosedCount:          2,
		ClosedSpoolSizeGrams: 1000,
		OpenTotalGrams:       300,
		OpenSpoolCount:       1,
	}
}

func TestCalculateSpoolsNeeded_DocumentedTable(t *testing.T) {
	cases := []struct {
		grams    float64
		spools   int
		leftover float64
	}{
		{850, 1, 150},
		{920, 2, 80},
		{2500, 3, 500},
		{2950, 4, 50},
		{0, 0, 0},
	}

	for _, c := range cases {
		got := CalculateSpoolsNeeded(c.grams, 1000)
		assert.Equal(t, c.spools, got.Spools, "grams=%v", c.grams)
		assert.InDelta(t, c.leftover, got.LeftoverGrams, 1e-9, "grams=%v", c.grams)
	}
}

func TestTotalGrams(t *testing.T) {
	assert.Equal(t, 2300.0, TotalGrams(blackPLA()))
}

func TestOpenNewSpool(t *testing.T) {
	l := NewLedger([]storage.ColorInventoryItem{blackPLA()}, nil)

	it, err := l.OpenNewSpool("black", "pla")
	require.NoError(t, err)
	assert.Equal(t, 1, it.ClosedCount)
	assert.Equal(t, 2, it.OpenSpoolCount)
	assert.Equal(t, 1300.0, it.OpenTotalGrams)
	assert.Equal(t, 2300.0, TotalGrams(*it), "opening a spool never changes the total")

	_, err = l.OpenNewSpool("black", "pla")
	require.NoError(t, err)
	_, err = l.OpenNewSpool("black", "pla")
	assert.ErrorIs(t, err, ErrNoClosedSpool)
}

func TestAdjustClosedCount(t *testing.T) {
	l := NewLedger(nil, nil)

	_, err := l.AdjustClosedCount("Red", "PETG", -1, 0)
	assert.ErrorIs(t, err, ErrUnknownMaterial)

	it, err := l.AdjustClosedCount("Red", "PETG", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, it.ClosedCount)
	assert.Equal(t, 3000.0, l.AvailableGrams("red", ""))

	it, err = l.AdjustClosedCount("Red", "PETG", -5, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, it.ClosedCount)
}

func TestConsumeFromColorInventory_ClampsAndOpens(t *testing.T) {
	l := NewLedger([]storage.ColorInventoryItem{blackPLA()}, nil)

	res := l.ConsumeFromColorInventory("Black", "PLA", 500, nil)
	assert.Equal(t, 500.0, res.Consumed)
	assert.Equal(t, 1, res.SpoolsOpened)
	assert.Equal(t, 1800.0, res.Remaining)

	res = l.ConsumeFromColorInventory("Black", "PLA", 5000, nil)
	assert.Equal(t, 1800.0, res.Consumed)
	assert.Equal(t, 0.0, res.Remaining)
	assert.True(t, res.SpoolFinished)
}

func TestConsumeFromColorInventory_SpoolExhausted(t *testing.T) {
	l := NewLedger([]storage.ColorInventoryItem{blackPLA()}, nil)

	left := 20.0
	res := l.ConsumeFromColorInventory("Black", "PLA", 280, &left)
	assert.True(t, res.SpoolFinished)
	it := l.GetColorInventoryItem("Black", "PLA")
	assert.Equal(t, 0, it.OpenSpoolCount)
	assert.Equal(t, 2, it.ClosedCount)
}

func spools() []storage.Spool {
	return []storage.Spool{
		{ID: "full", Color: "Black", Material: "PLA", PackageSizeGrams: 1000, GramsRemainingEst: 1000, State: storage.SpoolNew, Location: storage.LocationShelf},
		{ID: "partial-big", Color: "Black", Material: "PLA", PackageSizeGrams: 1000, GramsRemainingEst: 600, State: storage.SpoolOpen, Location: storage.LocationShelf},
		{ID: "partial-small", Color: "Black", Material: "PLA", PackageSizeGrams: 1000, GramsRemainingEst: 100, State: storage.SpoolOpen, Location: storage.LocationShelf},
		{ID: "mounted", Color: "Black", Material: "PLA", PackageSizeGrams: 1000, GramsRemainingEst: 400, State: storage.SpoolOpen, Location: storage.LocationPrinter, AssignedPrinterID: "P1"},
		{ID: "white", Color: "White", Material: "PLA", PackageSizeGrams: 1000, GramsRemainingEst: 1000, State: storage.SpoolNew},
	}
}

func TestConsumeMaterial_FIFOOrder(t *testing.T) {
	l := NewLedger(nil, spools())

	res := l.ConsumeMaterial("Black", "PLA", 600, "P1", false)
	require.True(t, res.Accepted)
	require.Len(t, res.Deductions, 3)
	assert.Equal(t, "mounted", res.Deductions[0].SpoolID)
	assert.Equal(t, "partial-small", res.Deductions[1].SpoolID)
	assert.Equal(t, "partial-big", res.Deductions[2].SpoolID)
	assert.Equal(t, 100.0, res.Deductions[2].Grams)
}

func TestConsumeMaterial_PlanningModeRejects(t *testing.T) {
	l := NewLedger(nil, spools())

	res := l.ConsumeMaterial("White", "PLA", 1500, "", false)
	assert.False(t, res.Accepted)
	assert.Equal(t, 500.0, res.Shortfall)
	assert.Equal(t, 1000.0, l.Spools()[4].GramsRemainingEst)
}

func TestConsumeMaterial_ExecutionModeAlwaysDeducts(t *testing.T) {
	l := NewLedger(nil, spools())

	res := l.ConsumeMaterial("White", "PLA", 1500, "", true)
	assert.True(t, res.Accepted)
	assert.Equal(t, 1000.0, res.Consumed)
	assert.Equal(t, 500.0, res.Shortfall)
	assert.Equal(t, storage.SpoolEmpty, l.Spools()[4].State)
}

func TestReorderRecommendations(t *testing.T) {
	item := blackPLA()
	item.ReorderPointGrams = 500
	l := NewLedger([]storage.ColorInventoryItem{item}, nil)

	cycles := []storage.PlannedCycle{
		{Status: storage.CyclePlanned, RequiredColor: "Black", RequiredMaterial: "PLA", RequiredGrams: 2000},
		{Status: storage.CyclePlanned, RequiredColor: "Black", RequiredMaterial: "PLA", RequiredGrams: 1220},
		{Status: storage.CycleCompleted, RequiredColor: "Black", RequiredMaterial: "PLA", RequiredGrams: 9999},
	}

	recs := l.ReorderRecommendations(cycles)
	require.Len(t, recs, 1)
	assert.Equal(t, 3220.0, recs[0].DemandGrams)
	assert.Equal(t, 920.0, recs[0].ShortfallGrams)
	assert.Equal(t, 2, recs[0].SpoolsToOrder)
	assert.True(t, recs[0].BelowReorder)
}

func TestMountLifecycle(t *testing.T) {
	p := &storage.Printer{ID: "P1"}

	require.NoError(t, Mount(p, "s1", "Black", "PLA"))
	assert.True(t, p.HasColorLoaded("black", "PLA"))

	Reserve(p)
	assert.Equal(t, storage.MountReserved, p.MountState)

	BeginUse(p)
	assert.ErrorIs(t, Unmount(p), ErrPrinterBusy)

	Release(p)
	require.NoError(t, Unmount(p))
	assert.False(t, p.HasColorLoaded("black", "PLA"))
}
