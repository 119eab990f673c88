package day_change

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"printfarm/internal/service/daychange"
)

type mockChecker struct {
	mock.Mock
}

func (m *mockChecker) Check(ctx context.Context) (daychange.Outcome, error) {
	args := m.Called(ctx)
	return args.Get(0).(daychange.Outcome), args.Error(1)
}

func TestCheckDayChange(t *testing.T) {
	tests := []struct {
		name    string
		outcome daychange.Outcome
		err     error
		want    int
	}{
		{"replanned", daychange.OutcomeReplanned, nil, http.StatusOK},
		{"another device", daychange.OutcomeLost, nil, http.StatusOK},
		{"rolled back", daychange.OutcomeRolledBack, errors.New("replan failed"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(mockChecker)
			c.On("Check", mock.Anything).Return(tt.outcome, tt.err).Once()

			rr := httptest.NewRecorder()
			CheckDayChange(slog.New(slog.NewTextHandler(io.Discard, nil)), c).
				ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/day-change/check", nil))

			require.Equal(t, tt.want, rr.Code)
			var resp Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.outcome, resp.Outcome)
			c.AssertExpectations(t)
		})
	}
}
