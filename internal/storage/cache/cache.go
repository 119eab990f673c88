package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"printfarm/internal/planlog"
	"printfarm/internal/storage"
)

// Backend persists raw collection payloads tagged with their schema version.
type Backend interface {
	LoadCollection(ctx context.Context, name string) ([]byte, int, error)
	SaveCollection(ctx context.Context, name string, version int, payload []byte) error
}

// Store is the synchronous in-process view of every collection. Reads never touch disk.
// Writes go to the local backend and are mirrored to the remote one; a failed mirror
// write leaves the collection dirty until FlushPending succeeds.
type Store struct {
	log    *slog.Logger
	local  Backend
	remote Backend

	writeMu sync.Mutex

	mu        sync.RWMutex
	products  []storage.Product
	projects  []storage.Project
	printers  []storage.Printer
	cycles    []storage.PlannedCycle
	inventory []storage.ColorInventoryItem
	spools    []storage.Spool
	cycleLogs []storage.CycleLog
	settings  storage.FactorySettings
	planLog   []planlog.Entry

	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// New builds an empty store. remote may be nil.
func New(log *slog.Logger, local, remote Backend) *Store {
	return &Store{
		log:      log,
		local:    local,
		remote:   remote,
		settings: storage.DefaultSettings(),
		dirty:    map[string]struct{}{},
	}
}

// Lock reserves the store for a read-modify-write spanning several Get and Save calls.
// Single Get and Save calls do not take it, so holders must not wait on each other.
func (s *Store) Lock() {
	s.writeMu.Lock()
}

func (s *Store) Unlock() {
	s.writeMu.Unlock()
}

// Load hydrates every collection. A collection missing locally is pulled from the remote
// backend and written back to the local one.
func (s *Store) Load(ctx context.Context) error {
	const op = "storage.cache.Load"

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range storage.AllCollections {
		g.Go(func() error {
			return s.loadOne(gctx, name)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) loadOne(ctx context.Context, name string) error {
	const op = "storage.cache.loadOne"

	raw, version, err := s.local.LoadCollection(ctx, name)
	fromRemote := false
	if errors.Is(err, storage.ErrNotFound) && s.remote != nil {
		raw, version, err = s.remote.LoadCollection(ctx, name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("remote collection unavailable", slog.String("op", op), slog.String("collection", name), slog.String("error", err.Error()))
			return nil
		}
		fromRemote = err == nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	raw, err = storage.Migrate(name, version, raw)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.apply(name, raw); err != nil {
		return fmt.Errorf("%s: decode %s: %w", op, name, err)
	}

	if fromRemote || version < storage.SchemaVersion {
		if err := s.local.SaveCollection(ctx, name, storage.SchemaVersion, raw); err != nil {
			s.log.Warn("failed to write back collection", slog.String("op", op), slog.String("collection", name), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Store) apply(name string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch name {
	case storage.CollectionProducts:
		return json.Unmarshal(raw, &s.products)
	case storage.CollectionProjects:
		return json.Unmarshal(raw, &s.projects)
	case storage.CollectionPrinters:
		return json.Unmarshal(raw, &s.printers)
	case storage.CollectionCycles:
		return json.Unmarshal(raw, &s.cycles)
	case storage.CollectionColorInventory:
		return json.Unmarshal(raw, &s.inventory)
	case storage.CollectionSpools:
		return json.Unmarshal(raw, &s.spools)
	case storage.CollectionCycleLogs:
		return json.Unmarshal(raw, &s.cycleLogs)
	case storage.CollectionSettings:
		return json.Unmarshal(raw, &s.settings)
	case storage.CollectionPlanningLog:
		return json.Unmarshal(raw, &s.planLog)
	}
	return fmt.Errorf("unknown collection %q", name)
}

func (s *Store) snapshot(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch name {
	case storage.CollectionProducts:
		return clone(s.products)
	case storage.CollectionProjects:
		return clone(s.projects)
	case storage.CollectionPrinters:
		return clone(s.printers)
	case storage.CollectionCycles:
		return clone(s.cycles)
	case storage.CollectionColorInventory:
		return clone(s.inventory)
	case storage.CollectionSpools:
		return clone(s.spools)
	case storage.CollectionCycleLogs:
		return clone(s.cycleLogs)
	case storage.CollectionSettings:
		return s.settings
	case storage.CollectionPlanningLog:
		return clone(s.planLog)
	}
	return nil
}

// persist writes the in-memory collection through. The in-memory change stands even if it fails.
func (s *Store) persist(ctx context.Context, name string) error {
	const op = "storage.cache.persist"

	payload, err := json.Marshal(s.snapshot(name))
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", op, name, err)
	}
	if err := s.local.SaveCollection(ctx, name, storage.SchemaVersion, payload); err != nil {
		s.markDirty(name)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mirror(ctx, name, payload)
	return nil
}

func (s *Store) mirror(ctx context.Context, name string, payload []byte) {
	const op = "storage.cache.mirror"

	if s.remote == nil {
		return
	}
	if err := s.remote.SaveCollection(ctx, name, storage.SchemaVersion, payload); err != nil {
		s.log.Warn("mirror write failed, collection kept dirty",
			slog.String("op", op),
			slog.String("collection", name),
			slog.String("error", err.Error()),
		)
		s.markDirty(name)
		return
	}
	s.clearDirty(name)
}

func (s *Store) markDirty(name string) {
	s.dirtyMu.Lock()
	s.dirty[name] = struct{}{}
	s.dirtyMu.Unlock()
}

func (s *Store) clearDirty(name string) {
	s.dirtyMu.Lock()
	delete(s.dirty, name)
	s.dirtyMu.Unlock()
}

// Pending lists collections whose last write has not reached every backend.
func (s *Store) Pending() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()

	out := make([]string, 0, len(s.dirty))
	for name := range s.dirty {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FlushPending retries every dirty collection with its current content.
func (s *Store) FlushPending(ctx context.Context) error {
	const op = "storage.cache.FlushPending"

	var errs []error
	for _, name := range s.Pending() {
		payload, err := json.Marshal(s.snapshot(name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: encode %s: %w", op, name, err))
			continue
		}
		if err := s.local.SaveCollection(ctx, name, storage.SchemaVersion, payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", op, err))
			continue
		}
		if s.remote != nil {
			if err := s.remote.SaveCollection(ctx, name, storage.SchemaVersion, payload); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", op, err))
				continue
			}
		}
		s.clearDirty(name)
	}
	return errors.Join(errs...)
}

// RunFlusher retries dirty collections every interval until ctx is done.
func (s *Store) RunFlusher(ctx context.Context, interval time.Duration) {
	const op = "storage.cache.RunFlusher"

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(s.Pending()) == 0 {
				continue
			}
			if err := s.FlushPending(ctx); err != nil {
				s.log.Warn("flush pending collections", slog.String("op", op), slog.String("error", err.Error()))
			}
		}
	}
}

func clone[T any](in []T) []T {
	if in == nil {
		return nil
	}
	return append(make([]T, 0, len(in)), in...)
}
