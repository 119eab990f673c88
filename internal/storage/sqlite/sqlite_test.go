package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printfarm/internal/storage"
)

func openTestDB(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "farm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCollections_RoundTripAndOverwrite(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, _, err := s.LoadCollection(ctx, storage.CollectionProjects)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.SaveCollection(ctx, storage.CollectionProjects, 1, []byte(`[{"id":"p1"}]`)))
	require.NoError(t, s.SaveCollection(ctx, storage.CollectionProjects, 2, []byte(`[{"id":"p2"}]`)))

	raw, version, err := s.LoadCollection(ctx, storage.CollectionProjects)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.JSONEq(t, `[{"id":"p2"}]`, string(raw))
}

func TestDayMarker(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	day, err := s.LastDay(ctx)
	require.NoError(t, err)
	assert.Empty(t, day)

	require.NoError(t, s.SetLastDay(ctx, "2026-03-02"))
	require.NoError(t, s.SetLastDay(ctx, "2026-03-03"))

	day, err = s.LastDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-03", day)
}

func TestMigrate_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farm.db")

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveCollection(context.Background(), storage.CollectionSpools, 2, []byte(`[]`)))
	require.NoError(t, s.Close())

	// Reopening runs migrate against an up-to-date schema.
	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 2, version)

	_, _, err = s.LoadCollection(context.Background(), storage.CollectionSpools)
	assert.NoError(t, err)
}

func TestNew_InMemory(t *testing.T) {
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SaveCollection(context.Background(), storage.CollectionSettings, 2, []byte(`{}`)))
	_, _, err = s.LoadCollection(context.Background(), storage.CollectionSettings)
	assert.NoError(t, err)
}
