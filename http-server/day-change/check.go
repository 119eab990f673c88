package day_change

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/daychange"
)

type DayChecker interface {
	Check(ctx context.Context) (daychange.Outcome, error)
}

type Response struct {
	Outcome daychange.Outcome `json:"outcome"`
	Error   string            `json:"error,omitempty"`
}

func CheckDayChange(log *slog.Logger, checker DayChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.daychange.CheckDayChange"

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		outcome, err := checker.Check(ctx)
		if err != nil {
			log.Error("day change check failed", slog.String("op", op), slog.String("error", err.Error()))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Response{Outcome: outcome, Error: "day change check failed"})
			return
		}

		render.JSON(w, r, Response{Outcome: outcome})
	}
}
