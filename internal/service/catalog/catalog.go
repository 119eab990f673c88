package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"printfarm/internal/constants"
	"printfarm/internal/storage"
)

var ErrInvalidInput = errors.New("invalid input")

// Storage is the collection store; its Locker spans each read-modify-write.
type Storage interface {
	sync.Locker
	GetProducts(ctx context.Context) ([]storage.Product, error)
	SaveProducts(ctx context.Context, products []storage.Product) error
	GetProjects(ctx context.Context) ([]storage.Project, error)
	SaveProjects(ctx context.Context, projects []storage.Project) error
	GetPrinters(ctx context.Context) ([]storage.Printer, error)
	SavePrinters(ctx context.Context, printers []storage.Printer) error
}

type Scheduler interface {
	Schedule(reason string)
}

// Service registers the products, projects and printers the planner works from.
type Service struct {
	log    *slog.Logger
	store  Storage
	replan Scheduler
	now    func() time.Time
}

func New(log *slog.Logger, store Storage, replan Scheduler) *Service {
	return &Service{log: log, store: store, replan: replan, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) SaveProduct(ctx context.Context, p storage.Product) (storage.Product, error) {
	const op = "catalog.SaveProduct"

	if strings.TrimSpace(p.Name) == "" || p.GramsPerUnit <= 0 {
		return storage.Product{}, fmt.Errorf("%s: name and grams_per_unit are required: %w", op, ErrInvalidInput)
	}
	if p.RecommendedPreset() == nil {
		return storage.Product{}, fmt.Errorf("%s: at least one preset with units and hours is required: %w", op, ErrInvalidInput)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	for i := range p.Presets {
		if p.Presets[i].ID == "" {
			p.Presets[i].ID = uuid.NewString()
		}
	}

	s.store.Lock()
	defer s.store.Unlock()

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return storage.Product{}, fmt.Errorf("%s: %w", op, err)
	}
	replaced := false
	for i := range products {
		if products[i].ID == p.ID {
			products[i] = p
			replaced = true
		}
	}
	if !replaced {
		products = append(products, p)
	}
	if err := s.store.SaveProducts(ctx, products); err != nil {
		return storage.Product{}, fmt.Errorf("%s: %w", op, err)
	}

	s.replan.Schedule("product_saved")
	return p, nil
}

type CreateProjectRequest struct {
	Name              string          `json:"name"`
	ProductID         string          `json:"product_id"`
	PreferredPresetID string          `json:"preferred_preset_id,omitempty"`
	Quantity          int             `json:"quantity"`
	DueDate           string          `json:"due_date"`
	Urgency           storage.Urgency `json:"urgency,omitempty"`
	Color             string          `json:"color"`
	Material          string          `json:"material"`
}

func (s *Service) CreateProject(ctx context.Context, req CreateProjectRequest) (storage.Project, error) {
	const op = "catalog.CreateProject"

	if req.Quantity <= 0 || req.Color == "" {
		return storage.Project{}, fmt.Errorf("%s: quantity and color are required: %w", op, ErrInvalidInput)
	}
	switch req.Urgency {
	case "", storage.UrgencyNormal, storage.UrgencyUrgent, storage.UrgencyCritical:
	default:
		return storage.Project{}, fmt.Errorf("%s: urgency %q: %w", op, req.Urgency, ErrInvalidInput)
	}
	if _, err := time.Parse(storage.DateLayout, req.DueDate); err != nil {
		return storage.Project{}, fmt.Errorf("%s: due_date %q: %w", op, req.DueDate, ErrInvalidInput)
	}
	if m := strings.ToUpper(strings.TrimSpace(req.Material)); m != "" && !constants.KnownMaterials[m] {
		return storage.Project{}, fmt.Errorf("%s: material %q: %w", op, req.Material, ErrInvalidInput)
	}

	s.store.Lock()
	defer s.store.Unlock()

	products, err := s.store.GetProducts(ctx)
	if err != nil {
		return storage.Project{}, fmt.Errorf("%s: %w", op, err)
	}
	product := storage.ProductByID(products, req.ProductID)
	if product == nil {
		return storage.Project{}, fmt.Errorf("%s: %s: %w", op, req.ProductID, storage.ErrProductNotFound)
	}

	p := storage.Project{
		ID:                uuid.NewString(),
		Name:              req.Name,
		ProductID:         product.ID,
		PreferredPresetID: req.PreferredPresetID,
		QuantityTarget:    req.Quantity,
		DueDate:           req.DueDate,
		Urgency:           storage.UrgencyNormal,
		Status:            storage.ProjectPending,
		Color:             req.Color,
		Material:          req.Material,
		CreatedAt:         s.now().UTC(),
	}
	if p.Name == "" {
		p.Name = product.Name
	}
	if req.Urgency != "" {
		p.Urgency = req.Urgency
		p.UrgencyManualOverride = true
	}

	projects, err := s.store.GetProjects(ctx)
	if err != nil {
		return storage.Project{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SaveProjects(ctx, append(projects, p)); err != nil {
		return storage.Project{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("project created", slog.String("op", op), slog.String("project_id", p.ID), slog.Int("quantity", p.QuantityTarget))
	s.replan.Schedule("project_created")
	return p, nil
}

func (s *Service) CreatePrinter(ctx context.Context, p storage.Printer) (storage.Printer, error) {
	const op = "catalog.CreatePrinter"

	if strings.TrimSpace(p.Name) == "" || p.PhysicalPlateCapacity < 0 {
		return storage.Printer{}, fmt.Errorf("%s: name is required: %w", op, ErrInvalidInput)
	}
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = storage.PrinterActive
	}
	p.OccupiedPlates = 0
	p.MountState = storage.MountIdle

	s.store.Lock()
	defer s.store.Unlock()

	printers, err := s.store.GetPrinters(ctx)
	if err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.store.SavePrinters(ctx, append(printers, p)); err != nil {
		return storage.Printer{}, fmt.Errorf("%s: %w", op, err)
	}

	s.replan.Schedule("printer_added")
	return p, nil
}
