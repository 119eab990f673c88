package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/material"
	"printfarm/internal/service/readiness"
	"printfarm/internal/storage"
)

type InventoryProvider interface {
	GetColorInventory(ctx context.Context) ([]storage.ColorInventoryItem, error)
	GetSpools(ctx context.Context) ([]storage.Spool, error)
}

type PlanProvider interface {
	InventoryProvider
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
}

type InventoryResponse struct {
	Items        []storage.ColorInventoryItem `json:"items"`
	Spools       []storage.Spool              `json:"spools"`
	Availability map[string]float64           `json:"availability"`
}

func loadLedger(ctx context.Context, store InventoryProvider) (*material.Ledger, error) {
	items, err := store.GetColorInventory(ctx)
	if err != nil {
		return nil, err
	}
	spools, err := store.GetSpools(ctx)
	if err != nil {
		return nil, err
	}
	return material.NewLedger(items, spools), nil
}

func GetInventory(log *slog.Logger, store InventoryProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.materials.GetInventory"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ledger, err := loadLedger(ctx, store)
		if err != nil {
			log.Error("failed to load inventory", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, InventoryResponse{
			Items:        ledger.Items(),
			Spools:       ledger.Spools(),
			Availability: ledger.Availability(),
		})
	}
}

// GetSpoolsNeeded compares planned demand per color with stock.
func GetSpoolsNeeded(log *slog.Logger, store PlanProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.materials.GetSpoolsNeeded"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ledger, err := loadLedger(ctx, store)
		if err != nil {
			log.Error("failed to load inventory", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		cycles, err := store.GetCycles(ctx)
		if err != nil {
			log.Error("failed to get cycles", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, ledger.ReorderRecommendations(cycles))
	}
}

func GetLoadRecommendations(log *slog.Logger, store PlanProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.materials.GetLoadRecommendations"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ledger, err := loadLedger(ctx, store)
		if err != nil {
			log.Error("failed to load inventory", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		cycles, err := store.GetCycles(ctx)
		if err != nil {
			log.Error("failed to get cycles", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		printers, err := store.GetPrinters(ctx)
		if err != nil {
			log.Error("failed to get printers", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		actions := readiness.LoadRecommendations(cycles, printers, ledger)
		if actions == nil {
			actions = []readiness.Action{}
		}
		render.JSON(w, r, actions)
	}
}
