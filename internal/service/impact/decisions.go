package impact

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultUndoWindow = 30 * time.Second

var (
	ErrDecisionNotFound = errors.New("decision not found")
	ErrUndoExpired      = errors.New("undo window has passed")
	ErrAlreadyUndone    = errors.New("decision already undone")
)

type Decision struct {
	ID                string    `json:"id"`
	Option            Option    `json:"option"`
	ProjectID         string    `json:"project_id"`
	CycleID           string    `json:"cycle_id,omitempty"`
	UnitsScrap        int       `json:"units_scrap"`
	RecoveryProjectID string    `json:"recovery_project_id,omitempty"`
	MergedIntoCycleID string    `json:"merged_into_cycle_id,omitempty"`
	MergedUnits       int       `json:"merged_units,omitempty"`
	DecidedAt         time.Time `json:"decided_at"`
	Undone            bool      `json:"undone"`
}

// DecisionLog remembers scrap decisions so the most recent ones can be undone within a short window.
// Expiry is checked against the clock at query time.
type DecisionLog struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries []Decision
}

func NewDecisionLog(window time.Duration) *DecisionLog {
	if window <= 0 {
		window = DefaultUndoWindow
	}
	return &DecisionLog{window: window, now: time.Now}
}

func (l *DecisionLog) WithClock(now func() time.Time) *DecisionLog {
	l.now = now
	return l
}

func (l *DecisionLog) Record(d Decision) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.DecidedAt = l.now()
	l.entries = append(l.entries, d)
	return d
}

func (l *DecisionLog) Get(id string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range l.entries {
		if d.ID == id {
			return d, nil
		}
	}
	return Decision{}, ErrDecisionNotFound
}

func (l *DecisionLog) CanUndo(id string) bool {
	d, err := l.Get(id)
	return err == nil && !d.Undone && l.now().Sub(d.DecidedAt) <= l.window
}

// MarkUndone flags the decision as reverted. It fails once the window has passed.
func (l *DecisionLog) MarkUndone(id string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.entries {
		d := &l.entries[i]
		if d.ID != id {
			continue
		}
		if d.Undone {
			return *d, ErrAlreadyUndone
		}
		if l.now().Sub(d.DecidedAt) > l.window {
			return *d, ErrUndoExpired
		}
		d.Undone = true
		return *d, nil
	}
	return Decision{}, ErrDecisionNotFound
}

// Recent returns up to n decisions, newest first.
func (l *DecisionLog) Recent(n int) []Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Decision, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}
