package material

import (
	"math"
	"sort"

	"printfarm/internal/constants"
	"printfarm/internal/storage"
)

type SpoolEstimate struct {
	Spools        int     `json:"spools"`
	LeftoverGrams float64 `json:"leftover_grams"`
}

// CalculateSpoolsNeeded allocates whole spools to a need. When the last spool would be left with less than
// the safety threshold, one more spool is added; LeftoverGrams stays the leftover of the whole-spool allocation.
//
//	850g -> 1 spool, 150g left
//	920g -> 2 spools, 80g left
//	2500g -> 3 spools, 500g left
//	2950g -> 4 spools, 50g left
func CalculateSpoolsNeeded(gramsNeeded, spoolSizeGrams float64) SpoolEstimate {
	if gramsNeeded <= 0 {
		return SpoolEstimate{}
	}
	if spoolSizeGrams <= 0 {
		spoolSizeGrams = constants.DefaultSpoolSizeGrams
	}

	spools := int(math.Ceil(gramsNeeded / spoolSizeGrams))
	leftover := float64(spools)*spoolSizeGrams - gramsNeeded
	// float noise around exact multiples
	leftover = math.Round(leftover*1000) / 1000

	if leftover < constants.SpoolSafetyThresholdGrams {
		spools++
	}
	return SpoolEstimate{Spools: spools, LeftoverGrams: leftover}
}

type ReorderRecommendation struct {
	Color          string  `json:"color"`
	Material       string  `json:"material"`
	DemandGrams    float64 `json:"demand_grams"`
	AvailableGrams float64 `json:"available_grams"`
	ShortfallGrams float64 `json:"shortfall_grams"`
	BelowReorder   bool    `json:"below_reorder_point"`
	SpoolsToOrder  int     `json:"spools_to_order"`
}

// ReorderRecommendations compares planned demand per color against the ledger.
func (l *Ledger) ReorderRecommendations(cycles []storage.PlannedCycle) []ReorderRecommendation {
	type demand struct {
		color, material string
		grams           float64
	}
	byKey := map[string]*demand{}
	for _, c := range cycles {
		if c.Status != storage.CyclePlanned && c.Status != storage.CycleInProgress {
			continue
		}
		if c.RequiredColor == "" {
			continue
		}
		key := storage.InventoryKey(c.RequiredColor, c.RequiredMaterial)
		d, ok := byKey[key]
		if !ok {
			d = &demand{color: c.RequiredColor, material: c.RequiredMaterial}
			byKey[key] = d
		}
		d.grams += c.RequiredGrams
	}

	for _, it := range l.items {
		if _, ok := byKey[it.Key()]; !ok {
			byKey[it.Key()] = &demand{color: it.Color, material: it.Material}
		}
	}

	var out []ReorderRecommendation
	for _, d := range byKey {
		available := l.AvailableGrams(d.color, d.material)
		size := constants.DefaultSpoolSizeGrams
		reorderPoint := 0.0
		if it := l.GetColorInventoryItem(d.color, d.material); it != nil {
			size = spoolSize(*it)
			reorderPoint = it.ReorderPointGrams
		}

		rec := ReorderRecommendation{
			Color:          d.color,
			Material:       d.material,
			DemandGrams:    d.grams,
			AvailableGrams: available,
		}
		if d.grams > available {
			rec.ShortfallGrams = d.grams - available
			rec.SpoolsToOrder = CalculateSpoolsNeeded(rec.ShortfallGrams, size).Spools
		}
		if reorderPoint > 0 && available-d.grams < reorderPoint {
			rec.BelowReorder = true
			if rec.SpoolsToOrder == 0 {
				rec.SpoolsToOrder = CalculateSpoolsNeeded(reorderPoint-(available-d.grams), size).Spools
			}
		}
		if rec.SpoolsToOrder > 0 || rec.BelowReorder {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ShortfallGrams != out[j].ShortfallGrams {
			return out[i].ShortfallGrams > out[j].ShortfallGrams
		}
		return storage.InventoryKey(out[i].Color, out[i].Material) < storage.InventoryKey(out[j].Color, out[j].Material)
	})
	return out
}
