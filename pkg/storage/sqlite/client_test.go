package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/storage"
	"github.com/braingraph/braingraph-go/pkg/storage/sqlite"
)

func newClient(t *testing.T) *sqlite.Client {
	t.Helper()
	client, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "store_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func createNode(t *testing.T, client *sqlite.Client, id string) *storage.Node {
	t.Helper()
	node := &storage.Node{
		ID:          id,
		Type:        storage.NodeNote,
		Title:       "title " + id,
		TextContent: "content for " + id,
	}
	require.NoError(t, client.CreateNode(context.Background(), node))
	return node
}

func TestNodeLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	node := createNode(t, client, "n1")
	assert.Equal(t, 1.0, node.Decay.DecayConfig.BaselineRelevance, "defaults applied on create")
	assert.Equal(t, 0.1, node.Decay.DecayConfig.MinRelevance)

	got, err := client.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, node.Title, got.Title)
	assert.Equal(t, storage.NodeNote, got.Type)
	assert.Equal(t, "exponential", got.Decay.DecayConfig.Method)

	_, err = client.GetNode(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = client.CreateNode(ctx, &storage.Node{ID: "n1", Type: storage.NodeNote, Title: "dup"})
	assert.ErrorIs(t, err, storage.ErrDuplicate)

	require.NoError(t, client.DeleteNode(ctx, "n1"))
	_, err = client.GetNode(ctx, "n1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, client.DeleteNode(ctx, "n1"), storage.ErrNotFound)
}

func TestListNodesFiltersByType(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	createNode(t, client, "note-1")
	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "code-1", Type: storage.NodeCode, Title: "snippet",
	}))

	notes, err := client.ListNodes(ctx, &storage.ListOptions{Type: storage.NodeNote})
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "note-1", notes[0].ID)

	all, err := client.ListNodes(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTrackAccessConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "hot")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.TrackAccess(ctx, "hot", time.Now())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	node, err := client.GetNode(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), node.Decay.UsageStats.AccessCount, "no lost increments")
	assert.Equal(t, int64(workers), node.Decay.UsageStats.Last7Days)
	require.NotNil(t, node.Decay.UsageStats.LastAccessed)

	count, err := client.CountSignals(ctx, "hot")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), count, "one view signal per access")
}

func TestTrackAccessMissingNode(t *testing.T) {
	client := newClient(t)
	err := client.TrackAccess(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteSignalsBefore(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "n1")

	old := time.Now().AddDate(0, 0, -120)
	recent := time.Now()
	require.NoError(t, client.TrackAccess(ctx, "n1", old))
	require.NoError(t, client.TrackAccess(ctx, "n1", recent))

	removed, err := client.DeleteSignalsBefore(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := client.CountSignals(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Aggregated usage counters survive signal cleanup.
	node, err := client.GetNode(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), node.Decay.UsageStats.AccessCount)
}

func TestSupersedePostconditions(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "old")
	createNode(t, client, "new")

	now := time.Now()
	require.NoError(t, client.UpsertScore(ctx, &storage.NodeScore{
		NodeID: "old", ScoreType: storage.ScoreDecay, ModelName: "decay-v1",
		Score: 0.7, ComputedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))

	require.NoError(t, client.Supersede(ctx, "old", "new", "rewritten", now))

	oldNode, err := client.GetNode(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, oldNode.Decay.Supersession.SupersededBy)
	assert.True(t, oldNode.Decay.Lifecycle.MarkedObsolete)
	require.NotNil(t, oldNode.Decay.Lifecycle.ObsoleteReason)
	assert.Equal(t, "rewritten", *oldNode.Decay.Lifecycle.ObsoleteReason)

	newNode, err := client.GetNode(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, newNode.Decay.Supersession.Supersedes)
	assert.False(t, newNode.Decay.Lifecycle.MarkedObsolete)

	edges, err := client.ListEdges(ctx, &storage.EdgeFilter{Type: storage.EdgeSupersedes})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "new", edges[0].SourceID)
	assert.Equal(t, "old", edges[0].TargetID)
	assert.Equal(t, "system", edges[0].CreatedBy)

	// Stored decay scores for both nodes are invalidated.
	scores, err := client.CurrentScores(ctx, []string{"old", "new"}, storage.ScoreDecay, now)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestSupersedeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "old")
	createNode(t, client, "new")

	now := time.Now()
	require.NoError(t, client.Supersede(ctx, "old", "new", "r", now))
	require.NoError(t, client.Supersede(ctx, "old", "new", "r", now))

	oldNode, err := client.GetNode(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, oldNode.Decay.Supersession.SupersededBy, "set semantics, no duplicates")

	edges, err := client.ListEdges(ctx, &storage.EdgeFilter{Type: storage.EdgeSupersedes})
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestSupersedeMissingNodeLeavesNoPartialWrites(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "old")

	err := client.Supersede(ctx, "old", "ghost", "r", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	oldNode, err := client.GetNode(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, oldNode.Decay.Supersession.SupersededBy)
	assert.False(t, oldNode.Decay.Lifecycle.MarkedObsolete)
}

func TestCurrentScoresHonorsExpiry(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "n1")

	now := time.Now()
	require.NoError(t, client.UpsertScore(ctx, &storage.NodeScore{
		NodeID: "n1", ScoreType: storage.ScoreDecay, ModelName: "decay-v1",
		Score: 0.9, ComputedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}))

	scores, err := client.CurrentScores(ctx, []string{"n1"}, storage.ScoreDecay, now)
	require.NoError(t, err)
	assert.Empty(t, scores, "expired scores are invisible")

	require.NoError(t, client.UpsertScore(ctx, &storage.NodeScore{
		NodeID: "n1", ScoreType: storage.ScoreDecay, ModelName: "decay-v1",
		Score: 0.42, ComputedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))
	scores, err = client.CurrentScores(ctx, []string{"n1"}, storage.ScoreDecay, now)
	require.NoError(t, err)
	assert.Equal(t, 0.42, scores["n1"])
}

func TestStoreEmbeddingDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "n1")

	require.NoError(t, client.RegisterModel(ctx, &storage.EmbeddingModel{
		Name: "test-model", Modality: storage.ModalityText, Dimension: 3, Active: true,
	}))

	err := client.StoreEmbedding(ctx, &storage.Embedding{
		ID: 1, NodeID: "n1", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{0.1, 0.2},
	})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	err = client.StoreEmbedding(ctx, &storage.Embedding{
		ID: 2, NodeID: "n1", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{0.1, 0.2, 0.3},
	})
	assert.NoError(t, err)
}

func TestSearchVectorOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "a")
	createNode(t, client, "b")

	require.NoError(t, client.RegisterModel(ctx, &storage.EmbeddingModel{
		Name: "test-model", Modality: storage.ModalityText, Dimension: 3, Active: true,
	}))
	require.NoError(t, client.StoreEmbedding(ctx, &storage.Embedding{
		ID: 1, NodeID: "a", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{1, 0, 0},
	}))
	require.NoError(t, client.StoreEmbedding(ctx, &storage.Embedding{
		ID: 2, NodeID: "b", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{0, 1, 0},
	}))

	hits, err := client.SearchVector(ctx, []float64{1, 0, 0}, &storage.VectorOptions{
		Granularity: storage.GranularityNode,
		ModelName:   "test-model",
		SourceParts: []string{"full"},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "b", hits[1].ID)
	assert.InDelta(t, 1.0, hits[1].Distance, 1e-9)
}

func TestChunksAndAdjacency(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "doc")

	for i, id := range []string{"c0", "c1", "c2", "c3", "c4"} {
		require.NoError(t, client.CreateChunk(ctx, &storage.Chunk{
			ID: id, NodeID: "doc", Position: i, Content: "chunk " + id,
		}))
	}

	before, after, err := client.AdjacentChunks(ctx, "c2", 2)
	require.NoError(t, err)
	require.Len(t, before, 2)
	require.Len(t, after, 2)
	assert.Equal(t, "c0", before[0].ID, "before chunks come back in position order")
	assert.Equal(t, "c1", before[1].ID)
	assert.Equal(t, "c3", after[0].ID)
	assert.Equal(t, "c4", after[1].ID)

	// Window is clamped at node boundaries.
	before, after, err = client.AdjacentChunks(ctx, "c0", 2)
	require.NoError(t, err)
	assert.Empty(t, before)
	assert.Len(t, after, 2)

	_, _, err = client.AdjacentChunks(ctx, "ghost", 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = client.CreateChunk(ctx, &storage.Chunk{
		ID: "c5", NodeID: "doc", Position: 0, Content: "dup position",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestCreateEdgeDuplicate(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "a")
	createNode(t, client, "b")

	edge := &storage.Edge{
		ID: 1, SourceID: "a", TargetID: "b", Type: "REFERENCES", CreatedBy: "user",
	}
	require.NoError(t, client.CreateEdge(ctx, edge))

	dup := &storage.Edge{
		ID: 2, SourceID: "a", TargetID: "b", Type: "REFERENCES", CreatedBy: "user",
	}
	assert.ErrorIs(t, client.CreateEdge(ctx, dup), storage.ErrDuplicate)

	other := &storage.Edge{
		ID: 3, SourceID: "a", TargetID: "b", Type: "MENTIONS", CreatedBy: "user",
	}
	assert.NoError(t, client.CreateEdge(ctx, other), "same pair, different type is a distinct edge")
}

func TestListActiveNodeIDsExcludesArchived(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "live")

	archived := &storage.Node{ID: "cold", Type: storage.NodeNote, Title: "cold"}
	archived.Decay = storage.DefaultDecayMetadata()
	archived.Decay.Lifecycle.Archived = true
	require.NoError(t, client.CreateNode(ctx, archived))

	ids, err := client.ListActiveNodeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, ids)
}

func TestTopCategoryPicksHighestConfidence(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)
	createNode(t, client, "n1")

	low := &storage.Category{Name: "general", Path: "general", Level: 1,
		TopicImportance: 3, ChangeVelocity: 5, UsageFocus: 3}
	high := &storage.Category{Name: "go", Path: "tech/go", Level: 2,
		TopicImportance: 8, ChangeVelocity: 7, UsageFocus: 8}
	require.NoError(t, client.CreateCategory(ctx, low))
	require.NoError(t, client.CreateCategory(ctx, high))

	require.NoError(t, client.AssignCategory(ctx, &storage.CategoryAssignment{
		NodeID: "n1", CategoryID: low.ID, Confidence: 0.4, AssignedBy: "system"}))
	require.NoError(t, client.AssignCategory(ctx, &storage.CategoryAssignment{
		NodeID: "n1", CategoryID: high.ID, Confidence: 0.9, AssignedBy: "user"}))

	cat, confidence, err := client.TopCategory(ctx, "n1")
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, "tech/go", cat.Path)
	assert.Equal(t, 0.9, confidence)

	// No assignment is not an error.
	createNode(t, client, "n2")
	cat, confidence, err = client.TopCategory(ctx, "n2")
	require.NoError(t, err)
	assert.Nil(t, cat)
	assert.Zero(t, confidence)
}

func TestSearchLexicalFTS(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "go-doc", Type: storage.NodeDocument, Title: "Go concurrency patterns",
		TextContent: "goroutines channels select worker pools",
	}))
	require.NoError(t, client.CreateNode(ctx, &storage.Node{
		ID: "cooking", Type: storage.NodeNote, Title: "Pasta recipes",
		TextContent: "tomato basil garlic",
	}))

	hits, err := client.SearchLexical(ctx, "goroutines channels", &storage.LexicalOptions{
		Granularity: storage.GranularityNode,
		Limit:       10,
	})
	if errors.Is(err, storage.ErrLexicalUnsupported) {
		t.Skip("driver built without FTS5")
	}
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "go-doc", hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Score, "best hit normalizes to 1.0")
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0)
		assert.LessOrEqual(t, h.Score, 1.0)
	}
}

func TestListTexts(t *testing.T) {
	ctx := context.Background()
	client := newClient(t)

	createNode(t, client, "n1")
	require.NoError(t, client.CreateChunk(ctx, &storage.Chunk{
		ID: "c1", NodeID: "n1", Position: 0, Content: "alpha beta",
	}))

	docs, err := client.ListTexts(ctx, storage.GranularityNode, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "n1", docs[0].ID)
	assert.Contains(t, docs[0].Text, "title n1")

	docs, err = client.ListTexts(ctx, storage.GranularityChunk, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c1", docs[0].ID)
	assert.Contains(t, docs[0].Text, "alpha beta")
}
