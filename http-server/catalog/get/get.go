package get

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/storage"
)

type CatalogProvider interface {
	GetProducts(ctx context.Context) ([]storage.Product, error)
	GetProjects(ctx context.Context) ([]storage.Project, error)
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
}

// list renders whatever load returns, or a 500 when it fails.
func list[T any](log *slog.Logger, op string, load func(ctx context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		items, err := load(ctx)
		if err != nil {
			log.Error("failed to load collection", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}
		if items == nil {
			items = []T{}
		}

		render.JSON(w, r, items)
	}
}

func GetProducts(log *slog.Logger, c CatalogProvider) http.HandlerFunc {
	return list(log, "handler.catalog.GetProducts", c.GetProducts)
}

func GetProjects(log *slog.Logger, c CatalogProvider) http.HandlerFunc {
	return list(log, "handler.catalog.GetProjects", c.GetProjects)
}

func GetPrinters(log *slog.Logger, c CatalogProvider) http.HandlerFunc {
	return list(log, "handler.catalog.GetPrinters", c.GetPrinters)
}
