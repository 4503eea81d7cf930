package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"efmtune/internal/model"
)

func sampleRecords() []model.LeaderboardRecord {
	return []model.LeaderboardRecord{
		{
			Score:      258289,
			Generation: 4,
			Params:     map[string]float64{"gain_0": 1.25, "offset_hz": -31337.5, "sample_rate_hz": 40000000},
		},
		{
			Score:      0,
			Generation: 0,
			Params:     map[string]float64{"gain_0": 0.0000152587890625},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "leaderboard.txt"))
	require.NoError(t, store.Init(ctx))

	_, found, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	assert.False(t, found, "missing leaderboard must not look like an empty one")

	want := sampleRecords()
	require.NoError(t, store.SaveLeaderboard(ctx, want))

	got, found, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Score, got[i].Score, "record %d score", i)
		assert.Equal(t, want[i].Generation, got[i].Generation, "record %d generation", i)
		assert.Equal(t, want[i].Params, got[i].Params, "record %d params", i)
	}
}

func TestFileStoreRewritesWholesale(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "leaderboard.txt")
	store := NewFileStore(path)
	require.NoError(t, store.Init(ctx))

	require.NoError(t, store.SaveLeaderboard(ctx, sampleRecords()))
	require.NoError(t, store.SaveLeaderboard(ctx, sampleRecords()[:1]))

	got, found, err := store.LoadLeaderboard(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, got, 1)

	// The atomic replace must not leave temp files behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), "."), "stale temp file %s", entry.Name())
	}
}

func TestFileStoreDiagnostics(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "leaderboard.txt"))
	require.NoError(t, store.Init(ctx))

	_, found, err := store.GetRunDiagnostics(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, found)

	want := []model.GenerationDiagnostics{
		{Generation: 0, BestScore: 10, MeanScore: 5, StddevScore: 2.5, Replaced: 3},
		{Generation: 1, BestScore: 12, MeanScore: 6, StddevScore: 2.0, Replaced: 1},
	}
	require.NoError(t, store.SaveRunDiagnostics(ctx, "run-1", want))

	got, found, err := store.GetRunDiagnostics(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, got)
}

func TestFileStoreInitRequiresPath(t *testing.T) {
	assert.Error(t, NewFileStore("").Init(context.Background()))
}
