package readiness

import (
	"fmt"
	"sort"

	"printfarm/internal/storage"
)

// Inventory is the slice of the material ledger the classifier needs.
type Inventory interface {
	AvailableGrams(color, material string) float64
}

// Classify recomputes readiness for every planned cycle. Cycles in other states are returned untouched.
// Material is budgeted in start order across the whole fleet, so a later cycle cannot claim grams an
// earlier one already needs.
func Classify(cycles []storage.PlannedCycle, printers []storage.Printer, inv Inventory) []storage.PlannedCycle {
	out := append([]storage.PlannedCycle(nil), cycles...)

	order := make([]int, 0, len(out))
	for i := range out {
		if out[i].Status == storage.CyclePlanned {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return out[order[a]].StartTime.Before(out[order[b]].StartTime)
	})

	budget := map[string]float64{}
	budgetFor := func(color, material string) float64 {
		key := storage.InventoryKey(color, material)
		if v, ok := budget[key]; ok {
			return v
		}
		v := inv.AvailableGrams(color, material)
		budget[key] = v
		return v
	}

	materialState := make(map[int]storage.ReadinessState, len(order))
	materialNote := make(map[int]string, len(order))
	for _, i := range order {
		c := out[i]
		if c.RequiredColor == "" {
			continue
		}
		avail := budgetFor(c.RequiredColor, c.RequiredMaterial)
		key := storage.InventoryKey(c.RequiredColor, c.RequiredMaterial)
		switch {
		case avail <= 0:
			materialState[i] = storage.BlockedInventory
			materialNote[i] = fmt.Sprintf("no %s %s in stock", c.RequiredMaterial, c.RequiredColor)
		case avail < c.RequiredGrams:
			materialState[i] = storage.WaitingForSpool
			materialNote[i] = fmt.Sprintf("shortage: need %.0fg, %.0fg available", c.RequiredGrams, avail)
		}
		budget[key] = avail - c.RequiredGrams
		if budget[key] < 0 {
			budget[key] = 0
		}
	}

	byPrinter := map[string][]int{}
	for _, i := range order {
		byPrinter[out[i].PrinterID] = append(byPrinter[out[i].PrinterID], i)
	}

	for printerID, idx := range byPrinter {
		printer := storage.PrinterByID(printers, printerID)
		onLoaded := printer != nil

		for pos, i := range idx {
			c := &out[i]

			if st, ok := materialState[i]; ok {
				c.ReadinessState = st
				c.ReadinessDetails = materialNote[i]
				onLoaded = false
				continue
			}

			if pos == 0 && printer != nil && printer.PlatesFull() {
				c.ReadinessState = storage.WaitingForPlateReload
				c.ReadinessDetails = fmt.Sprintf("%d/%d plates waiting for retrieval", printer.OccupiedPlates, printer.PhysicalPlateCapacity)
				continue
			}

			if onLoaded && (c.RequiredColor == "" || printer.HasColorLoaded(c.RequiredColor, c.RequiredMaterial)) {
				c.ReadinessState = storage.ReadyToStart
				c.ReadinessDetails = ""
				continue
			}

			onLoaded = false
			c.ReadinessState = storage.WaitingForSpool
			c.ReadinessDetails = fmt.Sprintf("load %s %s", c.RequiredMaterial, c.RequiredColor)
		}
	}

	return out
}

type ActionKind string

const (
	ActionLoadSpool    ActionKind = "load_spool"
	ActionRestock      ActionKind = "restock"
	ActionReloadPlates ActionKind = "reload_plates"
)

type Action struct {
	Kind           ActionKind `json:"kind"`
	PrinterID      string     `json:"printer_id"`
	CycleID        string     `json:"cycle_id"`
	ProjectID      string     `json:"project_id"`
	Color          string     `json:"color"`
	Material       string     `json:"material"`
	GramsNeeded    float64    `json:"grams_needed"`
	AvailableGrams float64    `json:"available_grams"`
	Shortage       bool       `json:"shortage"`
}

// LoadRecommendations returns one action per idle printer: the first planned cycle that is not ready.
// Cycles queued behind it are not actionable yet, and printers mid-cycle are skipped.
func LoadRecommendations(cycles []storage.PlannedCycle, printers []storage.Printer, inv Inventory) []Action {
	busy := map[string]bool{}
	first := map[string]*storage.PlannedCycle{}
	for i := range cycles {
		c := &cycles[i]
		if c.Status == storage.CycleInProgress {
			busy[c.PrinterID] = true
			continue
		}
		if c.Status != storage.CyclePlanned {
			continue
		}
		if cur, ok := first[c.PrinterID]; !ok || c.StartTime.Before(cur.StartTime) {
			first[c.PrinterID] = c
		}
	}

	var actions []Action
	for _, p := range printers {
		if !p.IsActive() || busy[p.ID] {
			continue
		}
		c, ok := first[p.ID]
		if !ok || c.ReadinessState == storage.ReadyToStart {
			continue
		}

		a := Action{
			PrinterID:   p.ID,
			CycleID:     c.ID,
			ProjectID:   c.ProjectID,
			Color:       c.RequiredColor,
			Material:    c.RequiredMaterial,
			GramsNeeded: c.RequiredGrams,
		}
		if c.RequiredColor != "" {
			a.AvailableGrams = inv.AvailableGrams(c.RequiredColor, c.RequiredMaterial)
		}
		a.Shortage = a.AvailableGrams < a.GramsNeeded

		switch c.ReadinessState {
		case storage.WaitingForPlateReload:
			a.Kind = ActionReloadPlates
		case storage.BlockedInventory:
			a.Kind = ActionRestock
		default:
			a.Kind = ActionLoadSpool
		}
		actions = append(actions, a)
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i].PrinterID < actions[j].PrinterID })
	return actions
}

// ApplyMount flips waiting_for_spool cycles on the printer whose color is now loaded. No replan is needed
// for a mount alone. Returns the number of flipped cycles.
func ApplyMount(printer storage.Printer, cycles []storage.PlannedCycle) int {
	flipped := 0
	for i := range cycles {
		c := &cycles[i]
		if c.PrinterID != printer.ID || c.Status != storage.CyclePlanned {
			continue
		}
		if c.ReadinessState != storage.WaitingForSpool {
			continue
		}
		if !printer.HasColorLoaded(c.RequiredColor, c.RequiredMaterial) {
			continue
		}
		c.ReadinessState = storage.ReadyToStart
		c.ReadinessDetails = ""
		flipped++
	}
	return flipped
}

// PromoteProjects moves pending projects with at least one ready cycle to in_progress.
func PromoteProjects(projects []storage.Project, cycles []storage.PlannedCycle) []string {
	ready := map[string]bool{}
	for _, c := range cycles {
		if c.Status == storage.CyclePlanned && c.ReadinessState == storage.ReadyToStart {
			ready[c.ProjectID] = true
		}
	}

	var promoted []string
	for i := range projects {
		p := &projects[i]
		if p.Status == storage.ProjectPending && ready[p.ID] {
			p.Status = storage.ProjectInProgress
			promoted = append(promoted, p.ID)
		}
	}
	return promoted
}
