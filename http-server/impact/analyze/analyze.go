package analyze

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/impact"
	"printfarm/internal/storage"
)

type FailureAnalyzer interface {
	AnalyzeFailure(ctx context.Context, ev impact.FailureEvent) (impact.Analysis, error)
}

func AnalyzeFailure(log *slog.Logger, a FailureAnalyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.impact.AnalyzeFailure"

		var ev impact.FailureEvent
		if err := render.DecodeJSON(r.Body, &ev); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if ev.ProjectID == "" || ev.UnitsScrap <= 0 {
			http.Error(w, "project_id and a positive units_scrap are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := a.AnalyzeFailure(ctx, ev)
		switch {
		case errors.Is(err, storage.ErrProjectNotFound), errors.Is(err, storage.ErrProductNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			log.Error("impact analysis failed", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, res)
	}
}
