package save

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/production"
	"printfarm/internal/storage"
)

type SpoolAdder interface {
	AddSpools(ctx context.Context, req production.AddSpoolsRequest) (storage.ColorInventoryItem, error)
}

func AddSpools(log *slog.Logger, adder SpoolAdder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.materials.AddSpools"

		var req production.AddSpoolsRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Color == "" || req.Count <= 0 {
			http.Error(w, "color and a positive count are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		item, err := adder.AddSpools(ctx, req)
		if err != nil {
			log.Error("failed to add spools", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, item)
	}
}
