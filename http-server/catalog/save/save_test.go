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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"printfarm/internal/service/catalog"
	"printfarm/internal/storage"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) SaveProduct(ctx context.Context, p storage.Product) (storage.Product, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(storage.Product), args.Error(1)
}

func (m *mockWriter) CreateProject(ctx context.Context, req catalog.CreateProjectRequest) (storage.Project, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(storage.Project), args.Error(1)
}

func (m *mockWriter) CreatePrinter(ctx context.Context, p storage.Printer) (storage.Printer, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(storage.Printer), args.Error(1)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateProject(t *testing.T) {
	cw := new(mockWriter)
	cw.On("CreateProject", mock.Anything, catalog.CreateProjectRequest{ProductID: "prod-1", Quantity: 10, DueDate: "2026-03-09", Color: "Black"}).
		Return(storage.Project{ID: "p-1"}, nil).Once()

	body := `{"product_id":"prod-1","quantity":10,"due_date":"2026-03-09","color":"Black"}`
	rr := httptest.NewRecorder()
	CreateProject(discard(), cw).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(body)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"p-1"`)
	cw.AssertExpectations(t)
}

func TestCreateProject_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", fmt.Errorf("catalog.CreateProject: %w", catalog.ErrInvalidInput), http.StatusBadRequest},
		{"unknown product", fmt.Errorf("catalog.CreateProject: %w", storage.ErrProductNotFound), http.StatusNotFound},
		{"storage", fmt.Errorf("disk"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cw := new(mockWriter)
			cw.On("CreateProject", mock.Anything, mock.Anything).Return(storage.Project{}, tt.err).Once()

			rr := httptest.NewRecorder()
			CreateProject(discard(), cw).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/projects", strings.NewReader(`{}`)))

			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestCreatePrinter_BadJSON(t *testing.T) {
	cw := new(mockWriter)
	rr := httptest.NewRecorder()
	CreatePrinter(discard(), cw).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/printers", strings.NewReader(`[`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	cw.AssertNotCalled(t, "CreatePrinter", mock.Anything, mock.Anything)
}
