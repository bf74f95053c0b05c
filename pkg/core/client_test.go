package core_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/core"
	"github.com/braingraph/braingraph-go/pkg/modelselect"
	"github.com/braingraph/braingraph-go/pkg/search"
	"github.com/braingraph/braingraph-go/pkg/storage"
)

func newTestClient(t *testing.T) *core.Client {
	t.Helper()
	client, err := core.NewClient(&core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config: map[string]interface{}{
				"db_path": filepath.Join(t.TempDir(), "core_test.db"),
			},
		},
		Embedder: core.EmbedderConfig{
			Provider:   "hash",
			Dimensions: 768,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClientRejectsBadConfig(t *testing.T) {
	_, err := core.NewClient(&core.Config{
		Embedder: core.EmbedderConfig{Provider: "hash"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidConfig, "missing store provider")

	_, err = core.NewClient(&core.Config{
		Store:    core.StoreConfig{Provider: "filesystem"},
		Embedder: core.EmbedderConfig{Provider: "hash"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidConfig, "unknown store provider")

	_, err = core.NewClient(&core.Config{
		Store: core.StoreConfig{
			Provider: "sqlite",
			Config:   map[string]interface{}{"db_path": filepath.Join(t.TempDir(), "x.db")},
		},
		Embedder: core.EmbedderConfig{Provider: "telepathy"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidConfig, "unknown embedder provider")
}

func TestClientNodeLifecycle(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	err := client.CreateNode(ctx, &storage.Node{ID: "n1"})
	assert.ErrorIs(t, err, core.ErrInvalidInput, "type is required")

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "first note",
	}))

	// GetNode counts as an access; PeekNode does not.
	node, err := client.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "first note", node.Title)

	node, err = client.PeekNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), node.Decay.UsageStats.AccessCount, "only GetNode tracked")

	_, err = client.GetNode(ctx, "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, client.DeleteNode(ctx, "n1"))
	_, err = client.PeekNode(ctx, "n1")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClientEdgeGetsGeneratedID(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{ID: "a", Type: storage.NodeNote, Title: "a"}))
	require.NoError(t, client.CreateNode(ctx, &storage.Node{ID: "b", Type: storage.NodeNote, Title: "b"}))

	edge := &storage.Edge{SourceID: "a", TargetID: "b", Type: "REFERENCES"}
	require.NoError(t, client.CreateEdge(ctx, edge))
	assert.NotZero(t, edge.ID, "ID generated when absent")
	assert.Equal(t, "user", edge.CreatedBy, "caller edges default to user provenance")

	edges, err := client.ListEdges(ctx, &storage.EdgeFilter{NodeID: "a"})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestClientEmbedAndSearch(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "target", Type: storage.NodeNote, Title: "target",
		TextContent: "distributed consensus with raft",
	}))
	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "other", Type: storage.NodeNote, Title: "other",
		TextContent: "sourdough starter maintenance",
	}))

	// The hash embedder is deterministic, so embedding the stored text and
	// searching with the same text yields an exact vector match.
	require.NoError(t, client.EmbedAndStore(ctx, "target", modelselect.ModelTextJina,
		modelselect.PartFull, "distributed consensus with raft"))
	require.NoError(t, client.EmbedAndStore(ctx, "other", modelselect.ModelTextJina,
		modelselect.PartFull, "sourdough starter maintenance"))

	results, err := client.SearchNodes(ctx, &search.Request{
		Query: "distributed consensus with raft",
		Alpha: 1,
		Limit: 5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "target", results[0].NodeID)
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-9, "identical text embeds identically")

	// Search results count as accesses.
	node, err := client.PeekNode(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, int64(1), node.Decay.UsageStats.AccessCount)
}

func TestClientSearchAppliesDefaultLimit(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "note", TextContent: "alpha beta",
	}))

	// Limit 0 would be invalid; the client fills in its default.
	results, err := client.SearchNodes(ctx, &search.Request{Query: "alpha", Alpha: 0})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClientStoreEmbeddingValidation(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "n1",
	}))

	err := client.StoreEmbedding(ctx, &storage.Embedding{NodeID: "n1"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = client.StoreEmbedding(ctx, &storage.Embedding{
		NodeID: "n1", ModelName: modelselect.ModelTextJina,
		SourcePart: modelselect.PartFull,
		Vector:     []float64{0.1, 0.2, 0.3},
	})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	err = client.StoreEmbedding(ctx, &storage.Embedding{
		NodeID: "n1", ModelName: "unregistered-model",
		SourcePart: modelselect.PartFull,
		Vector:     []float64{0.1},
	})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestClientSupersessionAffectsDecay(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "v1", Type: storage.NodeNote, Title: "v1",
	}))
	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "v2", Type: storage.NodeNote, Title: "v2",
	}))

	fresh, err := client.ComputeDecayScore(ctx, "v1")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, fresh, 0.01, "fresh node scores at baseline")

	require.NoError(t, client.MarkSuperseded(ctx, "v1", "v2", "rewritten"))

	superseded, err := client.IsSuperseded(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, superseded)

	replacements, err := client.Replacements(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, replacements)

	// Superseded + obsolete penalties push the score to the floor.
	penalized, err := client.ComputeDecayScore(ctx, "v1")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, penalized, 1e-9)
}

func TestClientRecomputeAndChunks(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "doc", Type: storage.NodeDocument, Title: "doc",
	}))
	for i, id := range []string{"c0", "c1", "c2"} {
		require.NoError(t, client.CreateChunk(ctx, &storage.Chunk{
			ID: id, NodeID: "doc", Position: i, Content: "chunk " + id,
		}))
	}

	result, err := client.RecomputeDecayScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	res, err := client.ChunkWithContext(ctx, "c1", 1)
	require.NoError(t, err)
	assert.Equal(t, "chunk c0", res.ContextBefore)
	assert.Equal(t, "chunk c2", res.ContextAfter)
}

func TestClientModelsForType(t *testing.T) {
	client := newTestClient(t)

	recs := client.ModelsForType(storage.NodeNote)
	require.NotEmpty(t, recs)
	assert.Equal(t, modelselect.ModelTextJina, recs[0].ModelName)
}

func TestClientTrackAndCleanupSignals(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "n1",
	}))
	require.NoError(t, client.TrackAccess(ctx, "n1"))
	require.NoError(t, client.TrackAccess(ctx, "n1"))

	removed, err := client.CleanupOldSignals(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "fresh signals survive cleanup")

	node, err := client.PeekNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), node.Decay.UsageStats.AccessCount)
}
