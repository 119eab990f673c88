package planlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultLimit = 100

// Entry records one recalculation pass.
type Entry struct {
	ID             string        `json:"id"`
	At             time.Time     `json:"at"`
	Reason         string        `json:"reason"`
	Scope          string        `json:"scope"`
	Success        bool          `json:"success"`
	CyclesCreated  int           `json:"cycles_created"`
	CyclesRemoved  int           `json:"cycles_removed"`
	BlockingIssues int           `json:"blocking_issues"`
	Warnings       []string      `json:"warnings,omitempty"`
	Summary        string        `json:"summary"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

type Store interface {
	SavePlanningLog(ctx context.Context, entries []Entry) error
}

// Log keeps the most recent entries, newest first.
type Log struct {
	log     *slog.Logger
	store   Store
	limit   int
	mu      sync.Mutex
	entries []Entry
}

func New(log *slog.Logger, store Store, limit int) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Log{log: log, store: store, limit: limit}
}

// Load replaces the in-memory entries, e.g. after reading them from storage.
func (l *Log) Load(entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(entries) > l.limit {
		entries = entries[:l.limit]
	}
	l.entries = append([]Entry(nil), entries...)
}

func (l *Log) Append(ctx context.Context, e Entry) {
	const op = "planlog.Append"

	l.mu.Lock()
	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.limit {
		l.entries = l.entries[:l.limit]
	}
	snapshot := append([]Entry(nil), l.entries...)
	l.mu.Unlock()

	if l.store == nil {
		return
	}
	if err := l.store.SavePlanningLog(ctx, snapshot); err != nil {
		l.log.Warn("failed to persist planning log", slog.String("op", op), slog.String("error", err.Error()))
	}
}

func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
