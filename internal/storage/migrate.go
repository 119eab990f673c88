package storage

import (
	"encoding/json"
	"fmt"
)

// Collection names shared by every collection store.
const (
	CollectionProducts       = "products"
	CollectionProjects       = "projects"
	CollectionPrinters       = "printers"
	CollectionCycles         = "planned_cycles"
	CollectionColorInventory = "color_inventory"
	CollectionSpools         = "spools"
	CollectionCycleLogs      = "cycle_logs"
	CollectionSettings       = "factory_settings"
	CollectionPlanningLog    = "planning_log"
)

const SchemaVersion = 2

var AllCollections = []string{
	CollectionProducts,
	CollectionProjects,
	CollectionPrinters,
	CollectionCycles,
	CollectionColorInventory,
	CollectionSpools,
	CollectionCycleLogs,
	CollectionSettings,
	CollectionPlanningLog,
}

// v1 payloads used different field names; renames are applied per record.
var legacyRenames = map[string]map[string]string{
	CollectionProducts: {
		"grams": "grams_per_unit",
	},
	CollectionProjects: {
		"quantity":        "quantity_target",
		"due":             "due_date",
		"parent_project":  "parent_project_id",
		"include_in_plan": "include_in_planning",
	},
	CollectionPrinters: {
		"mounted_spool":  "mounted_spool_id",
		"plate_capacity": "physical_plate_capacity",
		"after_hours":    "can_start_new_cycles_after_hours",
	},
}

// Migrate normalizes a stored payload into the current canonical shape.
func Migrate(collection string, version int, raw []byte) ([]byte, error) {
	const op = "storage.Migrate"

	if len(raw) == 0 || version >= SchemaVersion {
		return raw, nil
	}

	renames, ok := legacyRenames[collection]
	if !ok {
		return raw, nil
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("%s: decode %s v%d: %w", op, collection, version, err)
	}

	for _, rec := range records {
		renameKeys(rec, renames)
		if collection == CollectionProducts {
			if presets, ok := rec["presets"].([]any); ok {
				for _, p := range presets {
					if pm, ok := p.(map[string]any); ok {
						renameKeys(pm, renames)
					}
				}
			}
		}
	}

	out, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%s: encode %s: %w", op, collection, err)
	}
	return out, nil
}

func renameKeys(rec map[string]any, renames map[string]string) {
	for from, to := range renames {
		v, ok := rec[from]
		if !ok {
			continue
		}
		if _, exists := rec[to]; !exists {
			rec[to] = v
		}
		delete(rec, from)
	}
}
