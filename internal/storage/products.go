package storage

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type Product struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	GramsPerUnit float64       `json:"grams_per_unit"`
	Presets      []PlatePreset `json:"presets"`
}

type PlatePreset struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	UnitsPerPlate        int       `json:"units_per_plate"`
	CycleHours           float64   `json:"cycle_hours"`
	RiskLevel            RiskLevel `json:"risk_level"`
	AllowedForNightCycle bool      `json:"allowed_for_night_cycle"`
	IsRecommended        bool      `json:"is_recommended"`
	GramsPerUnit         *float64  `json:"grams_per_unit,omitempty"`
}

// UnitGrams returns the preset override when present, otherwise the product value.
func (p Product) UnitGrams(preset *PlatePreset) float64 {
	if preset != nil && preset.GramsPerUnit != nil && *preset.GramsPerUnit > 0 {
		return *preset.GramsPerUnit
	}
	return p.GramsPerUnit
}

// RecommendedPreset returns the recommended preset, or the first usable one.
func (p Product) RecommendedPreset() *PlatePreset {
	var first *PlatePreset
	for i := range p.Presets {
		pr := &p.Presets[i]
		if pr.UnitsPerPlate <= 0 || pr.CycleHours <= 0 {
			continue
		}
		if pr.IsRecommended {
			return pr
		}
		if first == nil {
			first = pr
		}
	}
	return first
}

func (p Product) Preset(id string) *PlatePreset {
	for i := range p.Presets {
		if p.Presets[i].ID == id {
			return &p.Presets[i]
		}
	}
	return nil
}

// MaxUnitsPerPlate is the largest plate across all presets of the product.
func (p Product) MaxUnitsPerPlate() int {
	maxUnits := 0
	for _, pr := range p.Presets {
		if pr.UnitsPerPlate > maxUnits {
			maxUnits = pr.UnitsPerPlate
		}
	}
	return maxUnits
}

func ProductByID(products []Product, id string) *Product {
	for i := range products {
		if products[i].ID == id {
			return &products[i]
		}
	}
	return nil
}
