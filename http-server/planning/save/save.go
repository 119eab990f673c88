package save

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/planning"
	"printfarm/internal/service/replan"
)

type Replanner interface {
	RunNow(ctx context.Context, scope planning.Scope, lockInProgress bool, reason string) (planning.RecalcResult, error)
}

type Scheduler interface {
	Schedule(reason string)
	Status() replan.Status
}

type RecalculateRequest struct {
	Scope          string `json:"scope"`
	LockInProgress *bool  `json:"lock_in_progress"`
	Reason         string `json:"reason"`
}

func Recalculate(log *slog.Logger, rp Replanner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.planning.Recalculate"

		var req RecalculateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		scope, err := planning.ParseScope(req.Scope)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		lock := true
		if req.LockInProgress != nil {
			lock = *req.LockInProgress
		}
		reason := req.Reason
		if reason == "" {
			reason = "manual"
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		res, err := rp.RunNow(ctx, scope, lock, reason)
		if errors.Is(err, replan.ErrReplanInProgress) {
			http.Error(w, "a replan is already running", http.StatusConflict)
			return
		}
		if err != nil {
			log.Error("recalculation failed", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, res)
	}
}

type AutoReplanRequest struct {
	Reason string `json:"reason"`
}

func AutoReplan(log *slog.Logger, sch Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.planning.AutoReplan"

		var req AutoReplanRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Reason == "" {
			req.Reason = "manual_trigger"
		}

		sch.Schedule(req.Reason)

		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, sch.Status())
	}
}
