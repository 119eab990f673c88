package check

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"printfarm/internal/service/feasibility"
	"printfarm/internal/storage"
)

type ProposalChecker interface {
	CheckProposal(ctx context.Context, p feasibility.Proposal) (feasibility.Result, error)
}

func CheckProposal(log *slog.Logger, c ProposalChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.proposals.CheckProposal"

		var p feasibility.Proposal
		if err := render.DecodeJSON(r.Body, &p); err != nil {
			log.Error("invalid JSON", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if p.ProductID == "" || p.Quantity <= 0 || p.DueDate == "" {
			http.Error(w, "product_id, quantity and due_date are required", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		res, err := c.CheckProposal(ctx, p)
		switch {
		case errors.Is(err, feasibility.ErrInvalidProposal):
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, storage.ErrProductNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case err != nil:
			log.Error("feasibility check failed", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, r, res)
	}
}
