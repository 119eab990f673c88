package cache

import (
	"context"

	"printfarm/internal/planlog"
	"printfarm/internal/storage"
)

func (s *Store) GetProducts(_ context.Context) ([]storage.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.products), nil
}

func (s *Store) SaveProducts(ctx context.Context, products []storage.Product) error {
	s.mu.Lock()
	s.products = clone(products)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionProducts)
}

func (s *Store) GetProjects(_ context.Context) ([]storage.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.projects), nil
}

func (s *Store) SaveProjects(ctx context.Context, projects []storage.Project) error {
	s.mu.Lock()
	s.projects = clone(projects)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionProjects)
}

func (s *Store) GetPrinters(_ context.Context) ([]storage.Printer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.printers), nil
}

func (s *Store) SavePrinters(ctx context.Context, printers []storage.Printer) error {
	s.mu.Lock()
	s.printers = clone(printers)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionPrinters)
}

func (s *Store) GetCycles(_ context.Context) ([]storage.PlannedCycle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.cycles), nil
}

func (s *Store) SaveCycles(ctx context.Context, cycles []storage.PlannedCycle) error {
	s.mu.Lock()
	s.cycles = clone(cycles)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionCycles)
}

func (s *Store) GetColorInventory(_ context.Context) ([]storage.ColorInventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.inventory), nil
}

func (s *Store) SaveColorInventory(ctx context.Context, items []storage.ColorInventoryItem) error {
	s.mu.Lock()
	s.inventory = clone(items)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionColorInventory)
}

func (s *Store) GetSpools(_ context.Context) ([]storage.Spool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.spools), nil
}

func (s *Store) SaveSpools(ctx context.Context, spools []storage.Spool) error {
	s.mu.Lock()
	s.spools = clone(spools)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionSpools)
}

func (s *Store) GetSettings(_ context.Context) (storage.FactorySettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings storage.FactorySettings) error {
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionSettings)
}

func (s *Store) GetCycleLogs(_ context.Context) ([]storage.CycleLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.cycleLogs), nil
}

func (s *Store) AppendCycleLog(ctx context.Context, entry storage.CycleLog) error {
	s.mu.Lock()
	s.cycleLogs = append(s.cycleLogs, entry)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionCycleLogs)
}

func (s *Store) GetPlanningLog(_ context.Context) ([]planlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.planLog), nil
}

func (s *Store) SavePlanningLog(ctx context.Context, entries []planlog.Entry) error {
	s.mu.Lock()
	s.planLog = clone(entries)
	s.mu.Unlock()
	return s.persist(ctx, storage.CollectionPlanningLog)
}
