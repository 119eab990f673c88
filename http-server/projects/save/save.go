package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"printfarm/internal/service/impact"
	"printfarm/internal/service/production"
	"printfarm/internal/storage"
)

type ProjectOperator interface {
	ForceCompleteProject(ctx context.Context, projectID string) (int, error)
	ApplyScrapDecision(ctx context.Context, req production.ScrapDecisionRequest) (impact.Decision, error)
	UndoScrapDecision(ctx context.Context, decisionID string) (impact.Decision, error)
	RecentDecisions(n int) []impact.Decision
}

func writeError(log *slog.Logger, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, storage.ErrProjectNotFound),
		errors.Is(err, storage.ErrCycleNotFound),
		errors.Is(err, storage.ErrProductNotFound),
		errors.Is(err, impact.ErrDecisionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, impact.ErrUndoExpired),
		errors.Is(err, impact.ErrAlreadyUndone),
		errors.Is(err, production.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Error("project operation failed", slog.String("op", op), slog.String("error", err.Error()))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

type ForceCompleteResponse struct {
	ProjectID       string `json:"project_id"`
	CyclesCancelled int    `json:"cycles_cancelled"`
}

func ForceComplete(log *slog.Logger, ops ProjectOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.projects.ForceComplete"

		projectID := chi.URLParam(r, "id")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		n, err := ops.ForceCompleteProject(ctx, projectID)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, ForceCompleteResponse{ProjectID: projectID, CyclesCancelled: n})
	}
}

func ApplyScrapDecision(log *slog.Logger, ops ProjectOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.projects.ApplyScrapDecision"

		var req production.ScrapDecisionRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		req.ProjectID = chi.URLParam(r, "id")
		if _, err := impact.ParseOption(string(req.Option)); err != nil || req.UnitsScrap <= 0 {
			http.Error(w, "a valid option and a positive units_scrap are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		d, err := ops.ApplyScrapDecision(ctx, req)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, d)
	}
}

func UndoScrapDecision(log *slog.Logger, ops ProjectOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.projects.UndoScrapDecision"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		d, err := ops.UndoScrapDecision(ctx, chi.URLParam(r, "decisionID"))
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, d)
	}
}

func RecentDecisions(log *slog.Logger, ops ProjectOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, ops.RecentDecisions(20))
	}
}
