package production

import (
	"context"
	"fmt"
	"log/slog"

	"printfarm/internal/events"
	"printfarm/internal/service/material"
	"printfarm/internal/service/readiness"
	"printfarm/internal/storage"
)

type MountRequest struct {
	Color    string `json:"color"`
	Material string `json:"material"`
	SpoolID  string `json:"spool_id,omitempty"`
	// OpenNew takes a sealed spool from the shelf for this mount.
	OpenNew bool `json:"open_new"`
}

type MountResult struct {
	Printer         storage.Printer `json:"printer"`
	CyclesFlipped   int             `json:"cycles_flipped"`
	ReplanScheduled bool            `json:"replan_scheduled"`
}

// MountSpool records that an operator loaded a color. Waiting cycles that now have their color flip to
// ready in place; a replan is only requested when nothing flipped.
func (s *Service) MountSpool(ctx context.Context, printerID string, req MountRequest) (MountResult, error) {
	const op = "production.MountSpool"

	defer s.lock()()

	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return MountResult{}, fmt.Errorf("%s: %w", op, err)
	}
	printer := storage.PrinterByID(printers, printerID)
	if printer == nil {
		return MountResult{}, fmt.Errorf("%s: %s: %w", op, printerID, storage.ErrPrinterNotFound)
	}
	if err := material.Mount(printer, req.SpoolID, req.Color, req.Material); err != nil {
		return MountResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if req.OpenNew || req.SpoolID != "" {
		items, err := s.store.GetColorInventory(ctx)
		if err != nil {
			return MountResult{}, fmt.Errorf("%s: %w", op, err)
		}
		spools, err := s.store.GetSpools(ctx)
		if err != nil {
			return MountResult{}, fmt.Errorf("%s: %w", op, err)
		}
		ledger := material.NewLedger(items, spools).WithClock(s.now)
		if req.OpenNew {
			if _, err := ledger.OpenNewSpool(req.Color, req.Material); err != nil {
				return MountResult{}, fmt.Errorf("%s: %w", op, err)
			}
		}
		spools = ledger.Spools()
		for i := range spools {
			if spools[i].ID == req.SpoolID {
				spools[i].Location = storage.LocationPrinter
				spools[i].AssignedPrinterID = printerID
				if spools[i].State == storage.SpoolNew {
					spools[i].State = storage.SpoolOpen
				}
			}
		}
		if err := s.store.SaveColorInventory(ctx, ledger.Items()); err != nil {
			return MountResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.store.SaveSpools(ctx, spools); err != nil {
			return MountResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return MountResult{}, fmt.Errorf("%s: %w", op, err)
	}
	res := MountResult{CyclesFlipped: readiness.ApplyMount(*printer, cycles)}
	if res.CyclesFlipped > 0 {
		material.Reserve(printer)
		if err := s.store.SaveCycles(ctx, cycles); err != nil {
			return MountResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.store.SavePrinters(ctx, printers); err != nil {
		return MountResult{}, fmt.Errorf("%s: %w", op, err)
	}
	res.Printer = *printer
	s.publish(events.PrintersChanged, printerID)

	if res.CyclesFlipped == 0 {
		s.schedule("spool_mounted")
		res.ReplanScheduled = true
	}

	s.log.Info("spool mounted",
		slog.String("op", op),
		slog.String("printer_id", printerID),
		slog.String("color", req.Color),
		slog.Int("cycles_flipped", res.CyclesFlipped),
	)
	return res, nil
}

// ClearPlates records that the operator retrieved every finished plate from the printer.
func (s *Service) ClearPlates(ctx context.Context, printerID string) (storage.Printer, error) {
	const op = "production.ClearPlates"

	defer s.lock()()

	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	printer := storage.PrinterByID(printers, printerID)
	if printer == nil {
		return storage.Printer{}, fmt.Errorf("%s: %s: %w", op, printerID, storage.ErrPrinterNotFound)
	}
	printer.OccupiedPlates = 0

	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	items, err := s.store.GetColorInventory(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	spools, err := s.store.GetSpools(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	cycles = readiness.Classify(cycles, printers, material.NewLedger(items, spools))

	if err := s.store.SavePrinters(ctx, printers); err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveCycles(ctx, cycles); err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(events.PrintersChanged, printerID)

	return *printer, nil
}

type AddSpoolsRequest struct {
	Color     string  `json:"color"`
	Material  string  `json:"material"`
	Count     int     `json:"count"`
	SizeGrams float64 `json:"size_grams"`
}

// AddSpools shelves sealed spools and records one physical spool per unit.
func (s *Service) AddSpools(ctx context.Context, req AddSpoolsRequest) (storage.ColorInventoryItem, error) {
	const op = "production.AddSpools"

	if req.Count <= 0 {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: count must be positive", op)
	}

	defer s.lock()()

	items, err := s.store.GetColorInventory(ctx)
	if err != nil {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: %w", op, err)
	}
	spools, err := s.store.GetSpools(ctx)
	if err != nil {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: %w", op, err)
	}

	ledger := material.NewLedger(items, spools).WithClock(s.now)
	item, err := ledger.AdjustClosedCount(req.Color, req.Material, req.Count, req.SizeGrams)
	if err != nil {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: %w", op, err)
	}
	added := *item

	spools = ledger.Spools()
	for i := 0; i < req.Count; i++ {
		spools = append(spools, storage.Spool{
			ID:                s.newID(),
			Color:             added.Color,
			Material:          added.Material,
			PackageSizeGrams:  added.ClosedSpoolSizeGrams,
			GramsRemainingEst: added.ClosedSpoolSizeGrams,
			State:             storage.SpoolNew,
			Location:          storage.LocationShelf,
		})
	}

	if err := s.store.SaveColorInventory(ctx, ledger.Items()); err != nil {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveSpools(ctx, spools); err != nil {
		return storage.ColorInventoryItem{}, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(events.InventoryChanged, added.Key())
	s.schedule("spools_added")
	return added, nil
}

// SetPrinterStatus takes a printer in or out of service.
func (s *Service) SetPrinterStatus(ctx context.Context, printerID string, status storage.PrinterStatus) (storage.Printer, error) {
	const op = "production.SetPrinterStatus"

	switch status {
	case storage.PrinterActive, storage.PrinterOutOfService, storage.PrinterArchived:
	default:
		return storage.Printer{}, fmt.Errorf("%s: %q: %w", op, status, ErrInvalidStatus)
	}

	defer s.lock()()

	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	printer := storage.PrinterByID(printers, printerID)
	if printer == nil {
		return storage.Printer{}, fmt.Errorf("%s: %s: %w", op, printerID, storage.ErrPrinterNotFound)
	}
	if printer.Status == status {
		return *printer, nil
	}
	printer.Status = status

	if err := s.store.SavePrinters(ctx, printers); err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	s.publish(events.PrintersChanged, printerID)
	s.schedule("printer_status_changed")
	return *printer, nil
}

// ForceCompleteProject closes a project regardless of counts and cancels its future cycles.
func (s *Service) ForceCompleteProject(ctx context.Context, projectID string) (int, error) {
	const op = "production.ForceCompleteProject"

	defer s.lock()()

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	project := storage.ProjectByID(projects, projectID)
	if project == nil {
		return 0, fmt.Errorf("%s: %s: %w", op, projectID, storage.ErrProjectNotFound)
	}
	project.Status = storage.ProjectCompleted

	cycles, err := s.store.GetCycles(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	cancelled := cancelFuture(cycles, projectID, s.now())

	if err := s.store.SaveProjects(ctx, projects); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveCycles(ctx, cycles); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.schedule("project_completed")

	s.log.Info("project force-completed", slog.String("op", op), slog.String("project_id", projectID), slog.Int("cycles_cancelled", cancelled))
	return cancelled, nil
}
