package replan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"printfarm/internal/events"
	"printfarm/internal/service/planning"
)

const DefaultDebounce = 1500 * time.Millisecond

var ErrReplanInProgress = errors.New("replan already in progress")

type Recalculator interface {
	RecalculatePlan(ctx context.Context, scope planning.Scope, lockInProgress bool, reason string) (planning.RecalcResult, error)
}

type Publisher interface {
	Publish(topic events.Topic, payload any)
}

type Timer interface {
	Stop() bool
}

// AfterFunc starts a timer that calls f once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func stdAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyBlocked NotificationKind = "blocked"
	NotifyError   NotificationKind = "error"
)

type Notification struct {
	Kind           NotificationKind `json:"kind"`
	Message        string           `json:"message"`
	Reasons        []string         `json:"reasons"`
	CyclesCreated  int              `json:"cycles_created"`
	BlockingIssues int              `json:"blocking_issues"`
	At             time.Time        `json:"at"`
}

type Status struct {
	IsReplanning   bool       `json:"is_replanning"`
	Pending        bool       `json:"pending"`
	PendingReasons []string   `json:"pending_reasons"`
	LastAutoReplan *time.Time `json:"last_auto_replan,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// Coordinator debounces replan triggers and guarantees at most one recalculation at a time.
type Coordinator struct {
	log       *slog.Logger
	recalc    Recalculator
	bus       Publisher
	debounce  time.Duration
	afterFunc AfterFunc
	now       func() time.Time

	mu           sync.Mutex
	timer        Timer
	gen          uint64 // bumped on every new or cancelled timer; a callback from an older one is ignored
	isReplanning bool
	reasons      map[string]struct{}
	lastAuto     time.Time
	lastErr      string
}

func NewCoordinator(log *slog.Logger, recalc Recalculator, bus Publisher, debounce time.Duration) *Coordinator {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Coordinator{
		log:       log,
		recalc:    recalc,
		bus:       bus,
		debounce:  debounce,
		afterFunc: stdAfterFunc,
		now:       time.Now,
		reasons:   map[string]struct{}{},
	}
}

func (c *Coordinator) WithTimerFactory(f AfterFunc) *Coordinator {
	c.afterFunc = f
	return c
}

// Schedule requests an automatic replan. Requests made while a replan runs are dropped. A running
// debounce timer is never reset, so a burst of triggers runs once at the first trigger's deadline.
func (c *Coordinator) Schedule(reason string) {
	const op = "replan.Schedule"

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isReplanning {
		c.log.Debug("replan in progress, trigger dropped", slog.String("op", op), slog.String("reason", reason))
		return
	}

	c.reasons[reason] = struct{}{}
	if c.timer != nil {
		return
	}
	c.gen++
	gen := c.gen
	c.timer = c.afterFunc(c.debounce, func() { c.fire(gen) })
	c.log.Debug("auto replan scheduled", slog.String("op", op), slog.String("reason", reason), slog.Duration("in", c.debounce))
}

// Cancel drops the pending timer and reasons without running.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// cancelLocked also covers a callback already dispatched when Stop returns false: the generation
// moves on, so that callback returns without running.
func (c *Coordinator) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
	c.reasons = map[string]struct{}{}
}

func (c *Coordinator) takeReasonsLocked() []string {
	out := make([]string, 0, len(c.reasons))
	for r := range c.reasons {
		out = append(out, r)
	}
	sort.Strings(out)
	c.reasons = map[string]struct{}{}
	return out
}

func (c *Coordinator) fire(gen uint64) {
	const op = "replan.fire"
	log := c.log.With(slog.String("op", op))

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		log.Debug("stale replan timer ignored")
		return
	}
	c.timer = nil
	if c.isReplanning || len(c.reasons) == 0 {
		c.mu.Unlock()
		return
	}
	reasons := c.takeReasonsLocked()
	c.isReplanning = true
	c.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("auto replan panicked", slog.String("error", err.Error()))
			c.finish(reasons, planning.RecalcResult{}, err)
		}
	}()

	res, err := c.recalc.RecalculatePlan(context.Background(), planning.ScopeFromNow, true, "auto: "+strings.Join(reasons, ", "))
	if err != nil {
		log.Error("auto replan failed", slog.String("error", err.Error()))
	} else {
		log.Info("auto replan finished",
			slog.Bool("success", res.Success),
			slog.Int("cycles_modified", res.CyclesModified),
			slog.Int("blocking_issues", res.BlockingIssuesCount),
			slog.Any("reasons", reasons),
		)
	}
	c.finish(reasons, res, err)
}

// finish releases the in-flight flag and notifies subscribers.
func (c *Coordinator) finish(reasons []string, res planning.RecalcResult, err error) {
	now := c.now()

	c.mu.Lock()
	c.isReplanning = false
	c.lastAuto = now
	c.lastErr = ""
	if err != nil {
		c.lastErr = err.Error()
	}
	c.mu.Unlock()

	n, ok := notificationFor(reasons, res, err, now)
	if ok && c.bus != nil {
		c.bus.Publish(events.ReplanNotification, n)
	}
}

func notificationFor(reasons []string, res planning.RecalcResult, err error, now time.Time) (Notification, bool) {
	n := Notification{
		Reasons:        reasons,
		CyclesCreated:  res.CyclesModified,
		BlockingIssues: res.BlockingIssuesCount,
		At:             now,
	}
	switch {
	case err != nil:
		n.Kind = NotifyError
		n.Message = "automatic replan failed, retry from the planning page"
	case res.CyclesModified > 0:
		n.Kind = NotifySuccess
		n.Message = fmt.Sprintf("plan updated: %d cycles", res.CyclesModified)
	case res.BlockingIssuesCount > 0:
		n.Kind = NotifyBlocked
		n.Message = fmt.Sprintf("nothing could be scheduled: %d blocking issues", res.BlockingIssuesCount)
	default:
		return n, false
	}
	return n, true
}

// RunNow runs a manual recalculation, replacing any pending automatic one.
func (c *Coordinator) RunNow(ctx context.Context, scope planning.Scope, lockInProgress bool, reason string) (planning.RecalcResult, error) {
	const op = "replan.RunNow"

	c.mu.Lock()
	if c.isReplanning {
		c.mu.Unlock()
		return planning.RecalcResult{}, fmt.Errorf("%s: %w", op, ErrReplanInProgress)
	}
	c.cancelLocked()
	c.isReplanning = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isReplanning = false
		c.mu.Unlock()
	}()

	res, err := c.recalc.RecalculatePlan(ctx, scope, lockInProgress, reason)
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		IsReplanning:   c.isReplanning,
		Pending:        c.timer != nil,
		PendingReasons: make([]string, 0, len(c.reasons)),
		LastError:      c.lastErr,
	}
	for r := range c.reasons {
		s.PendingReasons = append(s.PendingReasons, r)
	}
	sort.Strings(s.PendingReasons)
	if !c.lastAuto.IsZero() {
		t := c.lastAuto
		s.LastAutoReplan = &t
	}
	return s
}
