package catalog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printfarm/internal/storage"
)

type memStore struct {
	sync.Mutex
	products []storage.Product
	projects []storage.Project
	printers []storage.Printer
}

func (m *memStore) GetProducts(context.Context) ([]storage.Product, error) { return m.products, nil }
func (m *memStore) SaveProducts(_ context.Context, p []storage.Product) error {
	m.products = p
	return nil
}
func (m *memStore) GetProjects(context.Context) ([]storage.Project, error) { return m.projects, nil }
func (m *memStore) SaveProjects(_ context.Context, p []storage.Project) error {
	m.projects = p
	return nil
}
func (m *memStore) GetPrinters(context.Context) ([]storage.Printer, error) { return m.printers, nil }
func (m *memStore) SavePrinters(_ context.Context, p []storage.Printer) error {
	m.printers = p
	return nil
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Schedule(reason string) {
	m.Called(reason)
}

var now = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newService(store *memStore, sch *mockScheduler) *Service {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), store, sch).WithClock(func() time.Time { return now })
}

func widget() storage.Product {
	return storage.Product{
		ID:           "prod-1",
		Name:         "Widget",
		GramsPerUnit: 12,
		Presets:      []storage.PlatePreset{{ID: "pp-1", UnitsPerPlate: 8, CycleHours: 2, IsRecommended: true}},
	}
}

func TestCreateProject(t *testing.T) {
	store := &memStore{products: []storage.Product{widget()}}
	sch := new(mockScheduler)
	sch.On("Schedule", "project_created").Once()

	p, err := newService(store, sch).CreateProject(context.Background(), CreateProjectRequest{
		ProductID: "prod-1",
		Quantity:  40,
		DueDate:   "2026-03-09",
		Color:     "Black",
		Material:  "PLA",
	})

	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, storage.ProjectPending, p.Status)
	assert.Equal(t, storage.UrgencyNormal, p.Urgency)
	assert.False(t, p.UrgencyManualOverride)
	assert.Equal(t, now, p.CreatedAt)
	require.Len(t, store.projects, 1)
	sch.AssertExpectations(t)
}

func TestCreateProject_ExplicitUrgencyIsOverride(t *testing.T) {
	store := &memStore{products: []storage.Product{widget()}}
	sch := new(mockScheduler)
	sch.On("Schedule", mock.Anything)

	p, err := newService(store, sch).CreateProject(context.Background(), CreateProjectRequest{
		ProductID: "prod-1", Quantity: 5, DueDate: "2026-03-03", Color: "Red", Urgency: storage.UrgencyCritical,
	})

	require.NoError(t, err)
	assert.Equal(t, storage.UrgencyCritical, p.Urgency)
	assert.True(t, p.UrgencyManualOverride)
}

func TestCreateProject_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  CreateProjectRequest
		want error
	}{
		{"zero quantity", CreateProjectRequest{ProductID: "prod-1", DueDate: "2026-03-09", Color: "Black"}, ErrInvalidInput},
		{"bad date", CreateProjectRequest{ProductID: "prod-1", Quantity: 1, DueDate: "09.03.2026", Color: "Black"}, ErrInvalidInput},
		{"bad urgency", CreateProjectRequest{ProductID: "prod-1", Quantity: 1, DueDate: "2026-03-09", Color: "Black", Urgency: "asap"}, ErrInvalidInput},
		{"unknown product", CreateProjectRequest{ProductID: "nope", Quantity: 1, DueDate: "2026-03-09", Color: "Black"}, storage.ErrProductNotFound},
		{"unknown material", CreateProjectRequest{ProductID: "prod-1", Quantity: 1, DueDate: "2026-03-09", Color: "Black", Material: "Wood"}, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{products: []storage.Product{widget()}}
			sch := new(mockScheduler)

			_, err := newService(store, sch).CreateProject(context.Background(), tt.req)

			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, store.projects)
			sch.AssertNotCalled(t, "Schedule", mock.Anything)
		})
	}
}

func TestCreateProject_MaterialCaseInsensitive(t *testing.T) {
	store := &memStore{products: []storage.Product{widget()}}
	sch := new(mockScheduler)
	sch.On("Schedule", "project_created").Once()

	p, err := newService(store, sch).CreateProject(context.Background(), CreateProjectRequest{
		ProductID: "prod-1", Quantity: 5, DueDate: "2026-03-09", Color: "Black", Material: "petg",
	})

	require.NoError(t, err)
	assert.Equal(t, "petg", p.Material)
}

func TestSaveProduct_ReplacesByID(t *testing.T) {
	store := &memStore{products: []storage.Product{widget()}}
	sch := new(mockScheduler)
	sch.On("Schedule", "product_saved").Twice()
	svc := newService(store, sch)

	updated := widget()
	updated.GramsPerUnit = 15
	_, err := svc.SaveProduct(context.Background(), updated)
	require.NoError(t, err)
	require.Len(t, store.products, 1)
	assert.Equal(t, 15.0, store.products[0].GramsPerUnit)

	fresh := storage.Product{Name: "Bracket", GramsPerUnit: 30, Presets: []storage.PlatePreset{{UnitsPerPlate: 4, CycleHours: 3}}}
	saved, err := svc.SaveProduct(context.Background(), fresh)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.NotEmpty(t, saved.Presets[0].ID)
	assert.Len(t, store.products, 2)

	_, err = svc.SaveProduct(context.Background(), storage.Product{Name: "No presets", GramsPerUnit: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	sch.AssertExpectations(t)
}

func TestCreatePrinter_Defaults(t *testing.T) {
	store := &memStore{}
	sch := new(mockScheduler)
	sch.On("Schedule", "printer_added").Once()

	p, err := newService(store, sch).CreatePrinter(context.Background(), storage.Printer{Name: "P1S #3", OccupiedPlates: 4, PhysicalPlateCapacity: 3})

	require.NoError(t, err)
	assert.Equal(t, storage.PrinterActive, p.Status)
	assert.Equal(t, storage.MountIdle, p.MountState)
	assert.Zero(t, p.OccupiedPlates)
	assert.Len(t, store.printers, 1)
	sch.AssertExpectations(t)
}
