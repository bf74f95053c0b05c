package supersession_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/storage"
	"github.com/braingraph/braingraph-go/pkg/storage/sqlite"
	"github.com/braingraph/braingraph-go/pkg/supersession"
)

func newManager(t *testing.T) (*supersession.Manager, storage.Store) {
	t.Helper()
	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "supersession_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return supersession.NewManager(store), store
}

func seedNode(t *testing.T, store storage.Store, id string) {
	t.Helper()
	require.NoError(t, store.CreateNode(context.Background(), &storage.Node{
		ID: id, Type: storage.NodeNote, Title: id,
	}))
}

func TestMarkSupersededValidation(t *testing.T) {
	mgr, _ := newManager(t)
	ctx := context.Background()

	assert.Error(t, mgr.MarkSuperseded(ctx, "", "new", "r"), "empty old id rejected")
	assert.Error(t, mgr.MarkSuperseded(ctx, "old", "", "r"), "empty new id rejected")
	assert.Error(t, mgr.MarkSuperseded(ctx, "same", "same", "r"), "self-supersession rejected")
}

func TestMarkSupersededMissingNode(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	seedNode(t, store, "old")

	err := mgr.MarkSuperseded(ctx, "old", "ghost", "r")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	superseded, err := mgr.IsSuperseded(ctx, "old")
	require.NoError(t, err)
	assert.False(t, superseded, "failed call leaves no trace")
}

func TestMarkSupersededLinksBothSides(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	seedNode(t, store, "v1")
	seedNode(t, store, "v2")

	require.NoError(t, mgr.MarkSuperseded(ctx, "v1", "v2", "revised"))

	superseded, err := mgr.IsSuperseded(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, superseded)

	superseded, err = mgr.IsSuperseded(ctx, "v2")
	require.NoError(t, err)
	assert.False(t, superseded, "replacement itself is not superseded")

	replacements, err := mgr.Replacements(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, replacements)

	newNode, err := store.GetNode(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, newNode.Decay.Supersession.Supersedes)

	edges, err := store.ListEdges(ctx, &storage.EdgeFilter{Type: storage.EdgeSupersedes})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "v2", edges[0].SourceID)
	assert.Equal(t, "v1", edges[0].TargetID)
}

func TestMarkSupersededChain(t *testing.T) {
	mgr, store := newManager(t)
	ctx := context.Background()
	seedNode(t, store, "v1")
	seedNode(t, store, "v2")
	seedNode(t, store, "v3")

	// v1 replaced by v2, then both replaced by a merged v3.
	require.NoError(t, mgr.MarkSuperseded(ctx, "v1", "v2", "revised"))
	require.NoError(t, mgr.MarkSuperseded(ctx, "v1", "v3", "merged"))
	require.NoError(t, mgr.MarkSuperseded(ctx, "v2", "v3", "merged"))

	replacements, err := mgr.Replacements(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v3"}, replacements, "replacements keep recording order")

	merged, err := store.GetNode(ctx, "v3")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, merged.Decay.Supersession.Supersedes)
}

func TestReplacementsMissingNode(t *testing.T) {
	mgr, _ := newManager(t)
	_, err := mgr.Replacements(context.Background(), "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
