package save

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"printfarm/internal/service/material"
	"printfarm/internal/service/production"
	"printfarm/internal/storage"
)

type PrinterOperator interface {
	MountSpool(ctx context.Context, printerID string, req production.MountRequest) (production.MountResult, error)
	ClearPlates(ctx context.Context, printerID string) (storage.Printer, error)
	SetPrinterStatus(ctx context.Context, printerID string, status storage.PrinterStatus) (storage.Printer, error)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrPrinterNotFound):
		return http.StatusNotFound
	case errors.Is(err, material.ErrPrinterBusy):
		return http.StatusConflict
	case errors.Is(err, production.ErrInvalidStatus),
		errors.Is(err, material.ErrNoClosedSpool),
		errors.Is(err, material.ErrUnknownMaterial):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(log *slog.Logger, w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("printer operation failed", slog.String("op", op), slog.String("error", err.Error()))
		http.Error(w, "Internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func MountSpool(log *slog.Logger, ops PrinterOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.printers.MountSpool"

		printerID := chi.URLParam(r, "id")

		var req production.MountRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Color == "" {
			http.Error(w, "color is required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := ops.MountSpool(ctx, printerID, req)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, res)
	}
}

func ClearPlates(log *slog.Logger, ops PrinterOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.printers.ClearPlates"

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		printer, err := ops.ClearPlates(ctx, chi.URLParam(r, "id"))
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, printer)
	}
}

func SetStatus(log *slog.Logger, ops PrinterOperator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.printers.SetStatus"

		var req struct {
			Status storage.PrinterStatus `json:"status"`
		}
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		printer, err := ops.SetPrinterStatus(ctx, chi.URLParam(r, "id"), req.Status)
		if err != nil {
			writeError(log, w, op, err)
			return
		}

		render.JSON(w, r, printer)
	}
}
