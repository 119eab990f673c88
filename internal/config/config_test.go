package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workspace_id: ws-1\ntimezone: Asia/Jerusalem\n"), 0o600))

	var cfg Config
	require.NoError(t, cleanenv.ReadConfig(path, &cfg))

	assert.Equal(t, "ws-1", cfg.WorkspaceID)
	assert.Equal(t, 7, cfg.Planning.HorizonDays)
	assert.Equal(t, 1500*time.Millisecond, cfg.Planning.Debounce)
	assert.Equal(t, 5, cfg.Impact.MaxDominoHops)
	assert.Equal(t, 3, cfg.Impact.MaxMergeCandidates)
	assert.Equal(t, 6*time.Minute, cfg.Impact.MinMeaningfulDelay)
	assert.Equal(t, 30*time.Second, cfg.Impact.UndoWindow)
	assert.InDelta(t, 0.2, cfg.Feasibility.SafetyMargin, 1e-9)
	assert.False(t, cfg.MySQL.Enabled)
	assert.Equal(t, "Asia/Jerusalem", cfg.Location().String())
}

func TestLocation_FallsBackToUTC(t *testing.T) {
	cfg := Config{Timezone: "Mars/Olympus"}
	assert.Equal(t, time.UTC, cfg.Location())
}
