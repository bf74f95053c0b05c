package signals_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/signals"
	"github.com/braingraph/braingraph-go/pkg/storage"
	"github.com/braingraph/braingraph-go/pkg/storage/sqlite"
)

func newTracker(t *testing.T) (*signals.Tracker, storage.Store) {
	t.Helper()
	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "signals_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return signals.NewTracker(store), store
}

func TestTrackAccessUpdatesAggregates(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "n1",
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, tracker.TrackAccess(ctx, "n1"))
	}

	node, err := store.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), node.Decay.UsageStats.AccessCount)
	assert.Equal(t, int64(3), node.Decay.UsageStats.Last7Days)
	assert.Equal(t, int64(3), node.Decay.UsageStats.Last30Days)
	assert.Equal(t, int64(3), node.Decay.UsageStats.Last90Days)
	require.NotNil(t, node.Decay.UsageStats.LastAccessed)
	assert.WithinDuration(t, time.Now(), *node.Decay.UsageStats.LastAccessed, 5*time.Second)

	count, err := store.CountSignals(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count, "one signal row per access")
}

func TestTrackAccessRejectsEmptyID(t *testing.T) {
	tracker, _ := newTracker(t)
	assert.Error(t, tracker.TrackAccess(context.Background(), ""))
}

func TestTrackAccessMissingNode(t *testing.T) {
	tracker, _ := newTracker(t)
	err := tracker.TrackAccess(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCleanupOldSignals(t *testing.T) {
	tracker, store := newTracker(t)
	ctx := context.Background()

	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "n1",
	}))

	require.NoError(t, store.TrackAccess(ctx, "n1", time.Now().AddDate(0, 0, -200)))
	require.NoError(t, store.TrackAccess(ctx, "n1", time.Now().AddDate(0, 0, -10)))
	require.NoError(t, store.TrackAccess(ctx, "n1", time.Now()))

	removed, err := tracker.CleanupOldSignals(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// daysToKeep <= 0 falls back to the default 90-day window; nothing
	// older than that remains.
	removed, err = tracker.CleanupOldSignals(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	count, err := store.CountSignals(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
