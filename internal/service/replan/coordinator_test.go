package replan

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printfarm/internal/events"
	"printfarm/internal/service/planning"
)

type mockRecalculator struct {
	mock.Mock
}

func (m *mockRecalculator) RecalculatePlan(ctx context.Context, scope planning.Scope, lock bool, reason string) (planning.RecalcResult, error) {
	args := m.Called(ctx, scope, lock, reason)
	return args.Get(0).(planning.RecalcResult), args.Error(1)
}

type recordingBus struct {
	mu     sync.Mutex
	events []Notification
}

func (b *recordingBus) Publish(topic events.Topic, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := payload.(Notification); ok && topic == events.ReplanNotification {
		b.events = append(b.events, n)
	}
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
	// dispatched makes Stop report that the callback is already on its way.
	dispatched bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return !t.dispatched
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func newCoordinator(rc Recalculator, bus Publisher) (*Coordinator, *fakeClock) {
	clock := &fakeClock{}
	c := NewCoordinator(slog.New(slog.NewTextHandler(io.Discard, nil)), rc, bus, 0).WithTimerFactory(clock.AfterFunc)
	return c, clock
}

func TestSchedule_DebounceCollapsesWithoutReset(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, planning.ScopeFromNow, true, "auto: cycle_completed, printer_added, spool_added").
		Return(planning.RecalcResult{Success: true, CyclesModified: 3}, nil).Once()
	bus := &recordingBus{}

	c, clock := newCoordinator(rc, bus)

	// 1. A burst of triggers
	c.Schedule("cycle_completed")
	c.Schedule("spool_added")
	c.Schedule("printer_added")
	c.Schedule("spool_added")

	// 2. Only one timer, started with the original interval
	require.Len(t, clock.timers, 1)
	assert.Equal(t, DefaultDebounce, clock.timers[0].d)
	assert.False(t, clock.timers[0].stopped)
	assert.True(t, c.Status().Pending)
	assert.Equal(t, []string{"cycle_completed", "printer_added", "spool_added"}, c.Status().PendingReasons)

	// 3. Fire
	clock.timers[0].f()

	rc.AssertExpectations(t)
	st := c.Status()
	assert.False(t, st.Pending)
	assert.False(t, st.IsReplanning)
	assert.Empty(t, st.PendingReasons)
	require.NotNil(t, st.LastAutoReplan)
	require.Len(t, bus.events, 1)
	assert.Equal(t, NotifySuccess, bus.events[0].Kind)
}

func TestSchedule_DroppedWhileReplanning(t *testing.T) {
	rc := new(mockRecalculator)
	bus := &recordingBus{}
	c, clock := newCoordinator(rc, bus)

	rc.On("RecalculatePlan", mock.Anything, planning.ScopeFromNow, true, mock.Anything).
		Run(func(mock.Arguments) {
			// Triggers arriving mid-run change nothing.
			c.Schedule("late_trigger")
			assert.True(t, c.Status().IsReplanning)
			assert.Empty(t, c.Status().PendingReasons)
		}).
		Return(planning.RecalcResult{Success: true}, nil).Once()

	c.Schedule("first")
	clock.timers[0].f()

	assert.Len(t, clock.timers, 1)
	assert.False(t, c.Status().Pending)
	// Zero cycles and no blocking issues stays silent.
	assert.Empty(t, bus.events)
	rc.AssertExpectations(t)
}

func TestFire_BlockedNotification(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planning.RecalcResult{Success: true, BlockingIssuesCount: 2}, nil)
	bus := &recordingBus{}

	c, clock := newCoordinator(rc, bus)
	c.Schedule("inventory_changed")
	clock.timers[0].f()

	require.Len(t, bus.events, 1)
	assert.Equal(t, NotifyBlocked, bus.events[0].Kind)
	assert.Equal(t, 2, bus.events[0].BlockingIssues)
}

func TestFire_ErrorReleasesFlag(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planning.RecalcResult{}, errors.New("storage offline")).Once()
	rc.On("RecalculatePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(planning.RecalcResult{Success: true, CyclesModified: 1}, nil).Once()
	bus := &recordingBus{}

	c, clock := newCoordinator(rc, bus)
	c.Schedule("a")
	clock.timers[0].f()

	st := c.Status()
	assert.False(t, st.IsReplanning)
	assert.Equal(t, "storage offline", st.LastError)
	require.Len(t, bus.events, 1)
	assert.Equal(t, NotifyError, bus.events[0].Kind)

	// The next trigger works again.
	c.Schedule("b")
	require.Len(t, clock.timers, 2)
	clock.timers[1].f()
	assert.Empty(t, c.Status().LastError)
	rc.AssertExpectations(t)
}

func TestFire_PanicReleasesFlag(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("nil map") }).
		Return(planning.RecalcResult{}, nil)
	bus := &recordingBus{}

	c, clock := newCoordinator(rc, bus)
	c.Schedule("a")
	assert.NotPanics(t, clock.timers[0].f)

	assert.False(t, c.Status().IsReplanning)
	require.Len(t, bus.events, 1)
	assert.Equal(t, NotifyError, bus.events[0].Kind)
}

func TestCancel(t *testing.T) {
	c, clock := newCoordinator(new(mockRecalculator), nil)
	c.Schedule("a")
	c.Cancel()

	assert.True(t, clock.timers[0].stopped)
	assert.False(t, c.Status().Pending)
	assert.Empty(t, c.Status().PendingReasons)
}

func TestCancel_CallbackAlreadyDispatched(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, planning.ScopeFromNow, true, "auto: b, c").
		Return(planning.RecalcResult{Success: true, CyclesModified: 1}, nil).Once()
	c, clock := newCoordinator(rc, nil)

	c.Schedule("a")
	clock.timers[0].dispatched = true
	c.Cancel()
	c.Schedule("b")
	require.Len(t, clock.timers, 2)

	// The cancelled timer's callback still arrives.
	clock.timers[0].f()
	assert.True(t, c.Status().Pending)

	c.Schedule("c")
	require.Len(t, clock.timers, 2)

	for _, tm := range clock.timers {
		tm.f()
	}

	rc.AssertExpectations(t)
	rc.AssertNumberOfCalls(t, "RecalculatePlan", 1)
	assert.False(t, c.Status().Pending)
}

func TestRunNow_StaleCallbackDoesNotRun(t *testing.T) {
	rc := new(mockRecalculator)
	rc.On("RecalculatePlan", mock.Anything, planning.ScopeFromNow, true, "manual").
		Return(planning.RecalcResult{Success: true}, nil).Once()
	c, clock := newCoordinator(rc, nil)

	c.Schedule("a")
	clock.timers[0].dispatched = true
	_, err := c.RunNow(context.Background(), planning.ScopeFromNow, true, "manual")
	require.NoError(t, err)

	clock.timers[0].f()

	rc.AssertNumberOfCalls(t, "RecalculatePlan", 1)
	assert.False(t, c.Status().IsReplanning)
}

func TestRunNow_CancelsPendingAndRejectsOverlap(t *testing.T) {
	rc := new(mockRecalculator)
	c, clock := newCoordinator(rc, nil)

	rc.On("RecalculatePlan", mock.Anything, planning.ScopeWholeWeek, false, "manual").
		Run(func(mock.Arguments) {
			_, err := c.RunNow(context.Background(), planning.ScopeFromNow, true, "second")
			assert.ErrorIs(t, err, ErrReplanInProgress)
		}).
		Return(planning.RecalcResult{Success: true, CyclesModified: 4}, nil).Once()

	c.Schedule("auto")
	res, err := c.RunNow(context.Background(), planning.ScopeWholeWeek, false, "manual")

	require.NoError(t, err)
	assert.Equal(t, 4, res.CyclesModified)
	assert.True(t, clock.timers[0].stopped)
	assert.False(t, c.Status().IsReplanning)
	rc.AssertExpectations(t)
}
