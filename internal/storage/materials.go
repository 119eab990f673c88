package storage

import (
	"strings"
	"time"
)

// ColorInventoryItem is the canonical material record, keyed by material+color.
type ColorInventoryItem struct {
	ID                   string    `json:"id"`
	Color                string    `json:"color"`
	Material             string    `json:"material"`
	ClosedCount          int       `json:"closed_count"`
	ClosedSpoolSizeGrams float64   `json:"closed_spool_size_grams"`
	OpenTotalGrams       float64   `json:"open_total_grams"`
	OpenSpoolCount       int       `json:"open_spool_count"`
	ReorderPointGrams    float64   `json:"reorder_point_grams"`
	UpdatedAt            time.Time `json:"updated_at"`
}

func (i ColorInventoryItem) Key() string {
	return InventoryKey(i.Color, i.Material)
}

type SpoolState string

const (
	SpoolNew   SpoolState = "new"
	SpoolOpen  SpoolState = "open"
	SpoolEmpty SpoolState = "empty"
)

type SpoolLocation string

const (
	LocationShelf   SpoolLocation = "shelf"
	LocationPrinter SpoolLocation = "printer"
)

// Spool is optional per-physical-spool detail. The aggregate ColorInventoryItem stays authoritative.
type Spool struct {
	ID                string        `json:"id"`
	Color             string        `json:"color"`
	Material          string        `json:"material"`
	PackageSizeGrams  float64       `json:"package_size_grams"`
	GramsRemainingEst float64       `json:"grams_remaining_est"`
	State             SpoolState    `json:"state"`
	Location          SpoolLocation `json:"location"`
	AssignedPrinterID string        `json:"assigned_printer_id,omitempty"`
}

func InventoryKey(color, material string) string {
	return normalizeToken(material) + "|" + normalizeToken(color)
}

func SameColor(a, b string) bool {
	return normalizeToken(a) == normalizeToken(b)
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
