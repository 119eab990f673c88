package save

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"printfarm/internal/service/material"
	"printfarm/internal/service/production"
	"printfarm/internal/storage"
)

type mockPrinterOperator struct {
	mock.Mock
}

func (m *mockPrinterOperator) MountSpool(ctx context.Context, id string, req production.MountRequest) (production.MountResult, error) {
	args := m.Called(ctx, id, req)
	return args.Get(0).(production.MountResult), args.Error(1)
}

func (m *mockPrinterOperator) ClearPlates(ctx context.Context, id string) (storage.Printer, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(storage.Printer), args.Error(1)
}

func (m *mockPrinterOperator) SetPrinterStatus(ctx context.Context, id string, status storage.PrinterStatus) (storage.Printer, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(storage.Printer), args.Error(1)
}

func router(ops PrinterOperator) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Post("/api/printers/{id}/mount", MountSpool(log, ops))
	r.Post("/api/printers/{id}/clear-plates", ClearPlates(log, ops))
	r.Put("/api/printers/{id}/status", SetStatus(log, ops))
	return r
}

func TestMountSpool(t *testing.T) {
	ops := new(mockPrinterOperator)
	ops.On("MountSpool", mock.Anything, "pr-1", production.MountRequest{Color: "Black", Material: "PLA", OpenNew: true}).
		Return(production.MountResult{Printer: storage.Printer{ID: "pr-1"}, CyclesFlipped: 2}, nil).Once()

	body := `{"color":"Black","material":"PLA","open_new":true}`
	rr := httptest.NewRecorder()
	router(ops).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/printers/pr-1/mount", strings.NewReader(body)))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cycles_flipped":2`)
	ops.AssertExpectations(t)
}

func TestMountSpool_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing color", `{"material":"PLA"}`, nil, http.StatusBadRequest},
		{"busy", `{"color":"Red"}`, fmt.Errorf("x: %w", material.ErrPrinterBusy), http.StatusConflict},
		{"no spool", `{"color":"Red","open_new":true}`, fmt.Errorf("x: %w", material.ErrNoClosedSpool), http.StatusBadRequest},
		{"unknown printer", `{"color":"Red"}`, fmt.Errorf("x: %w", storage.ErrPrinterNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := new(mockPrinterOperator)
			if tt.err != nil {
				ops.On("MountSpool", mock.Anything, "pr-1", mock.Anything).Return(production.MountResult{}, tt.err).Once()
			}

			rr := httptest.NewRecorder()
			router(ops).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/printers/pr-1/mount", strings.NewReader(tt.body)))

			assert.Equal(t, tt.want, rr.Code)
			ops.AssertExpectations(t)
		})
	}
}

func TestClearPlatesAndStatus(t *testing.T) {
	ops := new(mockPrinterOperator)
	ops.On("ClearPlates", mock.Anything, "pr-2").Return(storage.Printer{ID: "pr-2"}, nil).Once()
	ops.On("SetPrinterStatus", mock.Anything, "pr-2", storage.PrinterOutOfService).
		Return(storage.Printer{}, fmt.Errorf("x: %w", production.ErrInvalidStatus)).Once()

	rr := httptest.NewRecorder()
	router(ops).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/printers/pr-2/clear-plates", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router(ops).ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/printers/pr-2/status", strings.NewReader(`{"status":"out_of_service"}`)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	ops.AssertExpectations(t)
}
