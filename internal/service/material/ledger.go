package material

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"printfarm/internal/constants"
	"printfarm/internal/storage"
)

var (
	ErrNoClosedSpool   = errors.New("no closed spool available")
	ErrUnknownMaterial = errors.New("inventory item not found")
)

// Ledger owns the color inventory (authoritative) and the optional per-spool detail.
type Ledger struct {
	items  []storage.ColorInventoryItem
	spools []storage.Spool
	now    func() time.Time
}

func NewLedger(items []storage.ColorInventoryItem, spools []storage.Spool) *Ledger {
	l := &Ledger{
		items:  append([]storage.ColorInventoryItem(nil), items...),
		spools: append([]storage.Spool(nil), spools...),
		now:    time.Now,
	}
	return l
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Items() []storage.ColorInventoryItem {
	return l.items
}

func (l *Ledger) Spools() []storage.Spool {
	return l.spools
}

func TotalGrams(item storage.ColorInventoryItem) float64 {
	return float64(item.ClosedCount)*spoolSize(item) + item.OpenTotalGrams
}

// GetColorInventoryItem finds the item for color+material. An empty material matches the first item of that color.
func (l *Ledger) GetColorInventoryItem(color, material string) *storage.ColorInventoryItem {
	for i := range l.items {
		it := &l.items[i]
		if !storage.SameColor(it.Color, color) {
			continue
		}
		if material == "" || storage.SameColor(it.Material, material) {
			return it
		}
	}
	return nil
}

// AvailableGrams sums every item of the color when material is empty.
func (l *Ledger) AvailableGrams(color, material string) float64 {
	total := 0.0
	for _, it := range l.items {
		if !storage.SameColor(it.Color, color) {
			continue
		}
		if material != "" && !storage.SameColor(it.Material, material) {
			continue
		}
		total += TotalGrams(it)
	}
	return total
}

// Availability returns grams per inventory key, used by the planner as its material budget.
func (l *Ledger) Availability() map[string]float64 {
	out := make(map[string]float64, len(l.items))
	for _, it := range l.items {
		out[it.Key()] += TotalGrams(it)
	}
	return out
}

// AdjustClosedCount adds or removes sealed spools. Creates the item when adding to an unknown color.
func (l *Ledger) AdjustClosedCount(color, material string, delta int, sizeGrams float64) (*storage.ColorInventoryItem, error) {
	const op = "material.AdjustClosedCount"

	it := l.GetColorInventoryItem(color, material)
	if it == nil {
		if delta <= 0 {
			return nil, fmt.Errorf("%s: %s %s: %w", op, material, color, ErrUnknownMaterial)
		}
		if sizeGrams <= 0 {
			sizeGrams = constants.DefaultSpoolSizeGrams
		}
		l.items = append(l.items, storage.ColorInventoryItem{
			ID:                   uuid.NewString(),
			Color:                color,
			Material:             material,
			ClosedSpoolSizeGrams: sizeGrams,
		})
		it = &l.items[len(l.items)-1]
	}

	it.ClosedCount += delta
	if it.ClosedCount < 0 {
		it.ClosedCount = 0
	}
	it.UpdatedAt = l.now()
	return it, nil
}

// OpenNewSpool moves one sealed spool to the open pool.
func (l *Ledger) OpenNewSpool(color, material string) (*storage.ColorInventoryItem, error) {
	const op = "material.OpenNewSpool"

	it := l.GetColorInventoryItem(color, material)
	if it == nil {
		return nil, fmt.Errorf("%s: %s %s: %w", op, material, color, ErrUnknownMaterial)
	}
	if it.ClosedCount <= 0 {
		return nil, fmt.Errorf("%s: %s %s: %w", op, material, color, ErrNoClosedSpool)
	}

	it.ClosedCount--
	it.OpenSpoolCount++
	it.OpenTotalGrams += spoolSize(*it)
	it.UpdatedAt = l.now()
	return it, nil
}

type ConsumeResult struct {
	Requested     float64 `json:"requested"`
	Consumed      float64 `json:"consumed"`
	Remaining     float64 `json:"remaining"`
	SpoolsOpened  int     `json:"spools_opened"`
	SpoolFinished bool    `json:"spool_finished"`
}

// ConsumeFromColorInventory deducts up to the available total. Open grams go first; sealed spools are
// opened as needed. spoolRemainingAfter is the estimate left on the loaded spool, when known.
func (l *Ledger) ConsumeFromColorInventory(color, material string, grams float64, spoolRemainingAfter *float64) ConsumeResult {
	res := ConsumeResult{Requested: grams}

	it := l.GetColorInventoryItem(color, material)
	if it == nil || grams <= 0 {
		if it != nil {
			res.Remaining = TotalGrams(*it)
		}
		return res
	}

	toConsume := grams
	if total := TotalGrams(*it); toConsume > total {
		toConsume = total
	}

	for it.OpenTotalGrams < toConsume && it.ClosedCount > 0 {
		it.ClosedCount--
		it.OpenSpoolCount++
		it.OpenTotalGrams += spoolSize(*it)
		res.SpoolsOpened++
	}

	it.OpenTotalGrams -= toConsume
	if it.OpenTotalGrams < 0 {
		it.OpenTotalGrams = 0
	}

	switch {
	case spoolRemainingAfter != nil:
		if *spoolRemainingAfter < constants.EmptySpoolThresholdGrams && it.OpenSpoolCount > 0 {
			it.OpenSpoolCount--
			res.SpoolFinished = true
		}
	case it.OpenTotalGrams < constants.EmptySpoolThresholdGrams && it.OpenSpoolCount > 0:
		it.OpenSpoolCount = 0
		res.SpoolFinished = true
	}

	it.UpdatedAt = l.now()
	res.Consumed = toConsume
	res.Remaining = TotalGrams(*it)
	return res
}

type SpoolDeduction struct {
	SpoolID string  `json:"spool_id"`
	Grams   float64 `json:"grams"`
}

type SpoolConsumeResult struct {
	Accepted   bool             `json:"accepted"`
	Consumed   float64          `json:"consumed"`
	Shortfall  float64          `json:"shortfall"`
	Deductions []SpoolDeduction `json:"deductions"`
}

// ConsumeMaterial deducts from physical spools, finishing partial spools before opening full ones.
// Planning mode (force=false) refuses when the spools cannot cover the request. Execution mode
// (force=true) records what was physically used even if the books say otherwise.
func (l *Ledger) ConsumeMaterial(color, material string, grams float64, printerID string, force bool) SpoolConsumeResult {
	res := SpoolConsumeResult{}
	if grams <= 0 {
		res.Accepted = true
		return res
	}

	candidates := l.spoolCandidates(color, material, printerID)

	available := 0.0
	for _, idx := range candidates {
		available += l.spools[idx].GramsRemainingEst
	}
	if !force && available < grams {
		res.Shortfall = grams - available
		return res
	}

	left := grams
	for _, idx := range candidates {
		if left <= 0 {
			break
		}
		sp := &l.spools[idx]
		take := sp.GramsRemainingEst
		if take > left {
			take = left
		}
		sp.GramsRemainingEst -= take
		left -= take
		if sp.State == storage.SpoolNew {
			sp.State = storage.SpoolOpen
		}
		if sp.GramsRemainingEst <= 0 {
			sp.GramsRemainingEst = 0
			sp.State = storage.SpoolEmpty
		}
		res.Deductions = append(res.Deductions, SpoolDeduction{SpoolID: sp.ID, Grams: take})
	}

	res.Accepted = true
	res.Consumed = grams - left
	if left > 0 {
		res.Shortfall = left
	}
	return res
}

// spoolCandidates orders spools: on the target printer first, then open before new, then least remaining.
func (l *Ledger) spoolCandidates(color, material, printerID string) []int {
	var idx []int
	for i, sp := range l.spools {
		if sp.State == storage.SpoolEmpty || sp.GramsRemainingEst <= 0 {
			continue
		}
		if !storage.SameColor(sp.Color, color) {
			continue
		}
		if material != "" && !storage.SameColor(sp.Material, material) {
			continue
		}
		idx = append(idx, i)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := l.spools[idx[a]], l.spools[idx[b]]
		onA := printerID != "" && sa.AssignedPrinterID == printerID
		onB := printerID != "" && sb.AssignedPrinterID == printerID
		if onA != onB {
			return onA
		}
		openA, openB := sa.State == storage.SpoolOpen, sb.State == storage.SpoolOpen
		if openA != openB {
			return openA
		}
		return sa.GramsRemainingEst < sb.GramsRemainingEst
	})
	return idx
}

// SpoolRemainingOn returns the estimate left on the spool assigned to the printer.
func (l *Ledger) SpoolRemainingOn(printerID, color string) (float64, bool) {
	for _, sp := range l.spools {
		if sp.AssignedPrinterID == printerID && sp.Location == storage.LocationPrinter && storage.SameColor(sp.Color, color) {
			return sp.GramsRemainingEst, true
		}
	}
	return 0, false
}

func spoolSize(item storage.ColorInventoryItem) float64 {
	if item.ClosedSpoolSizeGrams > 0 {
		return item.ClosedSpoolSizeGrams
	}
	return constants.DefaultSpoolSizeGrams
}
