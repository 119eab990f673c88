package get

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/planlog"
	"printfarm/internal/service/planning"
	"printfarm/internal/service/replan"
	"printfarm/internal/storage"
)

type StatusProvider interface {
	Status() replan.Status
}

type PlanLogProvider interface {
	Entries() []planlog.Entry
}

type StatusResponse struct {
	Replan  replan.Status   `json:"replan"`
	PlanLog []planlog.Entry `json:"plan_log"`
}

const statusLogEntries = 10

func GetStatus(log *slog.Logger, st StatusProvider, pl PlanLogProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := pl.Entries()
		if len(entries) > statusLogEntries {
			entries = entries[:statusLogEntries]
		}
		render.JSON(w, r, StatusResponse{Replan: st.Status(), PlanLog: entries})
	}
}

type CycleProvider interface {
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
}

// GetCycles lists cycles in start order, optionally filtered by ?printer_id= and ?status=.
func GetCycles(log *slog.Logger, store CycleProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.planning.GetCycles"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		cycles, err := store.GetCycles(ctx)
		if err != nil {
			log.Error("failed to get cycles", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		printerID := r.URL.Query().Get("printer_id")
		status := storage.CycleStatus(r.URL.Query().Get("status"))

		out := make([]storage.PlannedCycle, 0, len(cycles))
		for _, c := range cycles {
			if printerID != "" && c.PrinterID != printerID {
				continue
			}
			if status != "" && c.Status != status {
				continue
			}
			out = append(out, c)
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })

		render.JSON(w, r, out)
	}
}

type CoverageProvider interface {
	GetProjects(ctx context.Context) ([]storage.Project, error)
	GetCycles(ctx context.Context) ([]storage.PlannedCycle, error)
}

func GetCoverage(log *slog.Logger, store CoverageProvider, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.planning.GetCoverage"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		projects, err := store.GetProjects(ctx)
		if err != nil {
			log.Error("failed to get projects", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		cycles, err := store.GetCycles(ctx)
		if err != nil {
			log.Error("failed to get cycles", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, planning.Coverage(projects, cycles, loc))
	}
}
