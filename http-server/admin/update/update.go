package update

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"printfarm/internal/storage"
)

type SettingsSaver interface {
	SaveSettings(ctx context.Context, settings storage.FactorySettings) error
}

type Scheduler interface {
	Schedule(reason string)
}

func UpdateSettings(log *slog.Logger, saver SettingsSaver, replan Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.UpdateSettings"

		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var settings storage.FactorySettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
		if err := settings.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		settings.UpdatedAt = time.Now().UTC()

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := saver.SaveSettings(ctx, settings); err != nil {
			log.Error("failed to save factory settings", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		replan.Schedule("settings_changed")
		w.WriteHeader(http.StatusOK)
	}
}
