package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/catalog"
	"printfarm/internal/storage"
)

type CatalogWriter interface {
	SaveProduct(ctx context.Context, p storage.Product) (storage.Product, error)
	CreateProject(ctx context.Context, req catalog.CreateProjectRequest) (storage.Project, error)
	CreatePrinter(ctx context.Context, p storage.Printer) (storage.Printer, error)
}

func writeError(log *slog.Logger, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Error("catalog write failed", slog.String("op", op), slog.String("error", err.Error()))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func SaveProduct(log *slog.Logger, cw CatalogWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.catalog.SaveProduct"

		var p storage.Product
		if err := render.DecodeJSON(r.Body, &p); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		saved, err := cw.SaveProduct(ctx, p)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, saved)
	}
}

func CreateProject(log *slog.Logger, cw CatalogWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.catalog.CreateProject"

		var req catalog.CreateProjectRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		p, err := cw.CreateProject(ctx, req)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, p)
	}
}

func CreatePrinter(log *slog.Logger, cw CatalogWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.catalog.CreatePrinter"

		var p storage.Printer
		if err := render.DecodeJSON(r.Body, &p); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		created, err := cw.CreatePrinter(ctx, p)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, created)
	}
}
