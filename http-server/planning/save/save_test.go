package save

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printfarm/internal/service/planning"
	"printfarm/internal/service/replan"
)

type mockReplanner struct {
	mock.Mock
}

func (m *mockReplanner) RunNow(ctx context.Context, scope planning.Scope, lock bool, reason string) (planning.RecalcResult, error) {
	args := m.Called(ctx, scope, lock, reason)
	return args.Get(0).(planning.RecalcResult), args.Error(1)
}

type mockScheduler struct {
	mock.Mock
}

func (m *mockScheduler) Schedule(reason string) {
	m.Called(reason)
}

func (m *mockScheduler) Status() replan.Status {
	return m.Called().Get(0).(replan.Status)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecalculate_Defaults(t *testing.T) {
	rp := new(mockReplanner)
	rp.On("RunNow", mock.Anything, planning.ScopeFromNow, true, "manual").
		Return(planning.RecalcResult{Success: true, CyclesModified: 6}, nil).Once()

	// 1. Empty body uses from_now, locked in-progress cycles and a manual reason
	req := httptest.NewRequest(http.MethodPost, "/api/planning/recalculate", nil)
	rr := httptest.NewRecorder()
	Recalculate(discard(), rp).ServeHTTP(rr, req)

	// 2. Result is returned as JSON
	require.Equal(t, http.StatusOK, rr.Code)
	var res planning.RecalcResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, 6, res.CyclesModified)
	rp.AssertExpectations(t)
}

func TestRecalculate_Body(t *testing.T) {
	rp := new(mockReplanner)
	rp.On("RunNow", mock.Anything, planning.ScopeWholeWeek, false, "new week").
		Return(planning.RecalcResult{Success: true}, nil).Once()

	body := `{"scope":"whole_week","lock_in_progress":false,"reason":"new week"}`
	req := httptest.NewRequest(http.MethodPost, "/api/planning/recalculate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	Recalculate(discard(), rp).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	rp.AssertExpectations(t)
}

func TestRecalculate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		want   int
	}{
		{"bad json", `{"scope":`, nil, http.StatusBadRequest},
		{"unknown scope", `{"scope":"yesterday"}`, nil, http.StatusBadRequest},
		{"already running", `{}`, fmt.Errorf("replan.RunNow: %w", replan.ErrReplanInProgress), http.StatusConflict},
		{"storage failure", `{}`, errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rp := new(mockReplanner)
			if tt.runErr != nil {
				rp.On("RunNow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
					Return(planning.RecalcResult{}, tt.runErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/planning/recalculate", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			Recalculate(discard(), rp).ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			rp.AssertExpectations(t)
		})
	}
}

func TestAutoReplan(t *testing.T) {
	sch := new(mockScheduler)
	sch.On("Schedule", "inventory_changed").Once()
	sch.On("Status").Return(replan.Status{Pending: true, PendingReasons: []string{"inventory_changed"}}).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/planning/auto", strings.NewReader(`{"reason":"inventory_changed"}`))
	rr := httptest.NewRecorder()
	AutoReplan(discard(), sch).ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	var st replan.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &st))
	assert.True(t, st.Pending)
	sch.AssertExpectations(t)
}
