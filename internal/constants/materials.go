package constants

const (
	DefaultSpoolSizeGrams = 1000.0

	// SpoolSafetyThresholdGrams: a leftover smaller than this on the last spool of an order is not trusted.
	SpoolSafetyThresholdGrams = 150.0

	// EmptySpoolThresholdGrams: an open spool below this is considered exhausted.
	EmptySpoolThresholdGrams = 50.0
)

var (
	KnownMaterials = map[string]bool{
		"PLA":  true,
		"PETG": true,
		"ABS":  true,
		"ASA":  true,
		"TPU":  true,
		"PA":   true,
	}

	// NightSafeMaterials print reliably without an operator nearby.
	NightSafeMaterials = map[string]bool{
		"PLA":  true,
		"PETG": true,
	}
)
