package material

import (
	"errors"
	"fmt"

	"printfarm/internal/storage"
)

var ErrPrinterBusy = errors.New("printer is printing")

// Mount loads a color onto the printer. On AMS printers the first empty slot (or slot 0) is used.
func Mount(p *storage.Printer, spoolID, color, material string) error {
	if p.MountState == storage.MountInUse {
		return fmt.Errorf("material.Mount: %s: %w", p.ID, ErrPrinterBusy)
	}

	if p.HasAMS {
		slot := -1
		for i, s := range p.AMSSlots {
			if s.Color == "" {
				slot = i
				break
			}
		}
		if slot < 0 {
			if len(p.AMSSlots) == 0 {
				p.AMSSlots = append(p.AMSSlots, storage.AMSSlot{Index: 0})
			}
			slot = 0
		}
		p.AMSSlots[slot].SpoolID = spoolID
		p.AMSSlots[slot].Color = color
		p.AMSSlots[slot].Material = material
	} else {
		p.MountedSpoolID = spoolID
		p.MountedColor = color
		p.MountedMaterial = material
	}
	p.MountState = storage.MountIdle
	return nil
}

func Unmount(p *storage.Printer) error {
	if p.MountState == storage.MountInUse {
		return fmt.Errorf("material.Unmount: %s: %w", p.ID, ErrPrinterBusy)
	}
	p.MountedSpoolID = ""
	p.MountedColor = ""
	p.MountedMaterial = ""
	for i := range p.AMSSlots {
		p.AMSSlots[i] = storage.AMSSlot{Index: p.AMSSlots[i].Index}
	}
	p.MountState = storage.MountIdle
	return nil
}

// Reserve marks the loaded material as promised to the next ready cycle.
func Reserve(p *storage.Printer) {
	if p.MountState == storage.MountIdle {
		p.MountState = storage.MountReserved
	}
}

func BeginUse(p *storage.Printer) {
	p.MountState = storage.MountInUse
}

func Release(p *storage.Printer) {
	p.MountState = storage.MountIdle
}
