package storage

type PrinterStatus string

const (
	PrinterActive       PrinterStatus = "active"
	PrinterOutOfService PrinterStatus = "out_of_service"
	PrinterArchived     PrinterStatus = "archived"
)

type MountState string

const (
	MountIdle     MountState = "idle"
	MountReserved MountState = "reserved"
	MountInUse    MountState = "in_use"
)

type AMSSlot struct {
	Index    int    `json:"index"`
	SpoolID  string `json:"spool_id,omitempty"`
	Color    string `json:"color,omitempty"`
	Material string `json:"material,omitempty"`
}

type Printer struct {
	ID                          string        `json:"id"`
	Name                        string        `json:"name"`
	Status                      PrinterStatus `json:"status"`
	HasAMS                      bool          `json:"has_ams"`
	AMSSlots                    []AMSSlot     `json:"ams_slots,omitempty"`
	MountedSpoolID              string        `json:"mounted_spool_id,omitempty"`
	MountedColor                string        `json:"mounted_color,omitempty"`
	MountedMaterial             string        `json:"mounted_material,omitempty"`
	CanStartNewCyclesAfterHours bool          `json:"can_start_new_cycles_after_hours"`
	// PhysicalPlateCapacity of 0 means unlimited.
	PhysicalPlateCapacity int        `json:"physical_plate_capacity"`
	OccupiedPlates        int        `json:"occupied_plates"`
	MountState            MountState `json:"mount_state"`
}

func (p Printer) IsActive() bool {
	return p.Status == PrinterActive
}

// HasColorLoaded reports whether the color is on the spool holder or any AMS slot.
func (p Printer) HasColorLoaded(color, material string) bool {
	if color == "" {
		return false
	}
	if p.HasAMS {
		for _, s := range p.AMSSlots {
			if SameColor(s.Color, color) && materialMatches(s.Material, material) {
				return true
			}
		}
		return false
	}
	return SameColor(p.MountedColor, color) && materialMatches(p.MountedMaterial, material)
}

// PlatesFull reports whether every physical plate is waiting to be retrieved.
func (p Printer) PlatesFull() bool {
	return p.PhysicalPlateCapacity > 0 && p.OccupiedPlates >= p.PhysicalPlateCapacity
}

func materialMatches(loaded, required string) bool {
	return required == "" || loaded == "" || SameColor(loaded, required)
}

func PrinterByID(printers []Printer, id string) *Printer {
	for i := range printers {
		if printers[i].ID == id {
			return &printers[i]
		}
	}
	return nil
}
