package generate_excel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	excelsvc "printfarm/internal/service/generate-excel"
	"printfarm/internal/storage"
)

type ScheduleExporter interface {
	GenerateSchedule(ctx context.Context, filter excelsvc.ScheduleFilter) ([]byte, error)
}

// ExportSchedule streams the plan as a workbook. Without dates it covers today and the next six days.
func ExportSchedule(log *slog.Logger, gen ScheduleExporter, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handler.report.ExportSchedule"

		fromStr := r.URL.Query().Get("from")
		toStr := r.URL.Query().Get("to")

		now := time.Now().In(loc)
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

		from := today
		if fromStr != "" {
			d, err := time.ParseInLocation(storage.DateLayout, fromStr, loc)
			if err != nil {
				http.Error(w, "invalid from date", http.StatusBadRequest)
				return
			}
			from = d
		}

		to := from.AddDate(0, 0, 7)
		if toStr != "" {
			d, err := time.ParseInLocation(storage.DateLayout, toStr, loc)
			if err != nil {
				http.Error(w, "invalid to date", http.StatusBadRequest)
				return
			}
			// inclusive end date
			to = d.AddDate(0, 0, 1)
		}
		if !to.After(from) {
			http.Error(w, "to must not be before from", http.StatusBadRequest)
			return
		}

		filter := excelsvc.ScheduleFilter{
			From:      from,
			To:        to,
			PrinterID: r.URL.Query().Get("printer_id"),
			Location:  loc,
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		data, err := gen.GenerateSchedule(ctx, filter)
		if err != nil {
			log.Error("failed to generate excel", slog.String("op", op), slog.String("error", err.Error()))
			http.Error(w, "Internal error", http.StatusInternalServerError)
			return
		}

		fileName := fmt.Sprintf("Print_Schedule_%s.xlsx", from.Format(storage.DateLayout))

		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
		if _, err := w.Write(data); err != nil {
			log.Warn("failed to write workbook", slog.String("op", op), slog.String("error", err.Error()))
		}
	}
}
