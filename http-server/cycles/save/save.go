package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"printfarm/internal/service/production"
	"printfarm/internal/storage"
)

type CycleOperator interface {
	StartCycle(ctx context.Context, cycleID string) (storage.PlannedCycle, error)
	CompleteCycle(ctx context.Context, req production.CompleteRequest) (production.CompleteResult, error)
}

func writeError(log *slog.Logger, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrCycleNotFound), errors.Is(err, storage.ErrProjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, production.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, production.ErrInvalidUnits):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Error("cycle operation failed", slog.String("op", op), slog.String("error", err.Error()))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func StartCycle(log *slog.Logger, ops CycleOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.cycles.StartCycle"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		cycle, err := ops.StartCycle(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, cycle)
	}
}

func CompleteCycle(log *slog.Logger, ops CycleOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.cycles.CompleteCycle"

		var req production.CompleteRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.CycleID = chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := ops.CompleteCycle(ctx, req)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, res)
	}
}
