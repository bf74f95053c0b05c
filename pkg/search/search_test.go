package search_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/search"
	"github.com/braingraph/braingraph-go/pkg/storage"
	"github.com/braingraph/braingraph-go/pkg/storage/sqlite"
)

// newRanker builds a ranker over a fresh sqlite store with two nodes whose
// lexical and vector relevance pull in opposite directions:
//
//	node-basics:   matches both query tokens, embedding orthogonal to query
//	node-channels: matches one query token, embedding identical to query
//
// against query "goroutines channels" with query vector (1, 0, 0).
func newRanker(t *testing.T) (*search.Ranker, storage.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "search_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.RegisterModel(ctx, &storage.EmbeddingModel{
		Name: "test-model", Modality: storage.ModalityText, Dimension: 3, Active: true,
	}))

	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "node-basics", Type: storage.NodeNote, Title: "basics",
		TextContent: "goroutines channels",
	}))
	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "node-channels", Type: storage.NodeNote, Title: "advanced",
		TextContent: "channels select",
	}))

	require.NoError(t, store.StoreEmbedding(ctx, &storage.Embedding{
		ID: 1, NodeID: "node-basics", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{0, 1, 0},
	}))
	require.NoError(t, store.StoreEmbedding(ctx, &storage.Embedding{
		ID: 2, NodeID: "node-channels", Modality: storage.ModalityText,
		ModelName: "test-model", SourcePart: "full",
		Vector: []float64{1, 0, 0},
	}))

	ranker := search.NewRanker(store, search.NewTokenOverlap(store), nil)
	return ranker, store
}

func baseRequest() *search.Request {
	return &search.Request{
		Query:          "goroutines channels",
		QueryEmbedding: []float64{1, 0, 0},
		ModelName:      "test-model",
		Limit:          10,
	}
}

func TestSearchNodesValidation(t *testing.T) {
	ranker, _ := newRanker(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  *search.Request
	}{
		{"alpha below range", &search.Request{Query: "x", Alpha: -0.1, Limit: 10}},
		{"alpha above range", &search.Request{Query: "x", Alpha: 1.1, Limit: 10}},
		{"zero limit", &search.Request{Query: "x", Alpha: 0.5}},
		{"empty query", &search.Request{Query: "   ", Alpha: 0.5, Limit: 10}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ranker.SearchNodes(ctx, tc.req)
			assert.ErrorIs(t, err, search.ErrInvalidRequest)
		})
	}
}

func TestSearchNodesPureLexical(t *testing.T) {
	ranker, _ := newRanker(t)

	req := baseRequest()
	req.Alpha = 0

	results, err := ranker.SearchNodes(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "node-basics", results[0].NodeID, "full token overlap wins at alpha 0")
	assert.InDelta(t, 1.0, results[0].LexicalScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].HybridScore, 1e-9)
	assert.Zero(t, results[0].VectorScore, "vector side skipped at alpha 0")

	assert.Equal(t, "node-channels", results[1].NodeID)
	assert.InDelta(t, 0.5, results[1].LexicalScore, 1e-9)
}

func TestSearchNodesPureVector(t *testing.T) {
	ranker, _ := newRanker(t)

	req := baseRequest()
	req.Alpha = 1

	results, err := ranker.SearchNodes(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "node-channels", results[0].NodeID, "closest vector wins at alpha 1")
	assert.InDelta(t, 1.0, results[0].VectorScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].HybridScore, 1e-9)
	assert.Zero(t, results[0].LexicalScore, "lexical side skipped at alpha 1")

	assert.Equal(t, "node-basics", results[1].NodeID)
	assert.InDelta(t, 0.0, results[1].VectorScore, 1e-9)
}

func TestSearchNodesBlend(t *testing.T) {
	ranker, _ := newRanker(t)

	req := baseRequest()
	req.Alpha = 0.5

	results, err := ranker.SearchNodes(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// node-channels: 0.5*0.5 + 0.5*1.0 = 0.75
	// node-basics:   0.5*1.0 + 0.5*0.0 = 0.50
	assert.Equal(t, "node-channels", results[0].NodeID)
	assert.InDelta(t, 0.75, results[0].HybridScore, 1e-9)
	assert.Equal(t, "node-basics", results[1].NodeID)
	assert.InDelta(t, 0.50, results[1].HybridScore, 1e-9)
}

func TestSearchNodesOneSidedCandidateScoresPartialBlend(t *testing.T) {
	ranker, store := newRanker(t)
	ctx := context.Background()

	// Lexical-only candidate: matches a query token but has no embedding.
	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "node-lexonly", Type: storage.NodeNote, Title: "lexical only",
		TextContent: "goroutines everywhere",
	}))

	req := baseRequest()
	req.Alpha = 0.5

	results, err := ranker.SearchNodes(ctx, req)
	require.NoError(t, err)
	require.Len(t, results, 3)

	var hit *search.Result
	for _, r := range results {
		if r.NodeID == "node-lexonly" {
			hit = r
		}
	}
	require.NotNil(t, hit)
	assert.InDelta(t, 0.5, hit.LexicalScore, 1e-9)
	assert.Zero(t, hit.VectorScore, "missing side contributes zero")
	assert.InDelta(t, 0.25, hit.HybridScore, 1e-9)
}

func TestSearchNodesTieBreaksByID(t *testing.T) {
	ranker, store := newRanker(t)
	ctx := context.Background()

	// Same lexical score as node-channels, larger ID.
	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "node-zzz", Type: storage.NodeNote, Title: "tied",
		TextContent: "channels only",
	}))

	req := baseRequest()
	req.Alpha = 0

	results, err := ranker.SearchNodes(ctx, req)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "node-basics", results[0].NodeID)
	assert.Equal(t, "node-channels", results[1].NodeID, "equal scores order by ascending ID")
	assert.Equal(t, "node-zzz", results[2].NodeID)
}

func TestSearchNodesLimitTruncates(t *testing.T) {
	ranker, _ := newRanker(t)

	req := baseRequest()
	req.Alpha = 0
	req.Limit = 1

	results, err := ranker.SearchNodes(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "node-basics", results[0].NodeID)
}

func TestSearchNodesDecayWeighted(t *testing.T) {
	ranker, store := newRanker(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.UpsertScore(ctx, &storage.NodeScore{
		NodeID: "node-basics", ScoreType: storage.ScoreDecay, ModelName: "decay-v1",
		Score: 0.4, ComputedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}))

	req := baseRequest()
	req.Alpha = 0
	req.UseDecay = true

	results, err := ranker.SearchNodes(ctx, req)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// node-basics: 1.0 lexical x 0.4 decay = 0.4
	// node-channels: 0.5 lexical x 1.0 neutral decay = 0.5
	assert.Equal(t, "node-channels", results[0].NodeID, "decay reorders the ranking")
	assert.InDelta(t, 0.5, results[0].HybridScore, 1e-9)
	assert.Equal(t, 1.0, results[0].DecayScore, "missing stored score stays neutral")

	assert.Equal(t, "node-basics", results[1].NodeID)
	assert.InDelta(t, 0.4, results[1].HybridScore, 1e-9)
	assert.Equal(t, 0.4, results[1].DecayScore)
}

func TestSearchNodesNoMatches(t *testing.T) {
	ranker, _ := newRanker(t)

	results, err := ranker.SearchNodes(context.Background(), &search.Request{
		Query: "quantum entanglement", Alpha: 0, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func seedChunks(t *testing.T, store storage.Store) {
	t.Helper()
	ctx := context.Background()
	contents := []string{
		"intro paragraph",
		"setup instructions",
		"the needle is buried here",
		"closing remarks",
		"appendix",
	}
	for i, content := range contents {
		require.NoError(t, store.CreateChunk(ctx, &storage.Chunk{
			ID:       "chunk-" + string(rune('a'+i)),
			NodeID:   "node-basics",
			Position: i,
			Content:  content,
		}))
	}
}

func TestSearchChunksWithContext(t *testing.T) {
	ranker, store := newRanker(t)
	seedChunks(t, store)

	results, err := ranker.SearchChunks(context.Background(), &search.Request{
		Query:       "needle buried",
		Alpha:       0,
		Limit:       10,
		ContextSize: 1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	hit := results[0]
	assert.Equal(t, "chunk-c", hit.ChunkID)
	assert.Equal(t, "node-basics", hit.NodeID)
	assert.Equal(t, "the needle is buried here", hit.Content)
	assert.Equal(t, "setup instructions", hit.ContextBefore)
	assert.Equal(t, "closing remarks", hit.ContextAfter)
}

func TestChunkWithContext(t *testing.T) {
	ranker, store := newRanker(t)
	seedChunks(t, store)

	res, err := ranker.ChunkWithContext(context.Background(), "chunk-c", 2)
	require.NoError(t, err)
	assert.Equal(t, "node-basics", res.NodeID)
	assert.Equal(t, "the needle is buried here", res.Content)
	assert.Equal(t, "intro paragraph\nsetup instructions", res.ContextBefore)
	assert.Equal(t, "closing remarks\nappendix", res.ContextAfter)

	_, err = ranker.ChunkWithContext(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTokenOverlapScoring(t *testing.T) {
	_, store := newRanker(t)
	engine := search.NewTokenOverlap(store)
	ctx := context.Background()

	hits, err := engine.Search(ctx, "goroutines channels", &storage.LexicalOptions{
		Granularity: storage.GranularityNode,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "node-basics", hits[0].ID)
	assert.Equal(t, 1.0, hits[0].Score, "all query tokens present")
	assert.Equal(t, "node-channels", hits[1].ID)
	assert.Equal(t, 0.5, hits[1].Score, "half the query tokens present")

	// Tokenization is case-insensitive and strips punctuation.
	hits, err = engine.Search(ctx, "GOROUTINES, Channels!", &storage.LexicalOptions{
		Granularity: storage.GranularityNode,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1.0, hits[0].Score)

	hits, err = engine.Search(ctx, "   ", &storage.LexicalOptions{
		Granularity: storage.GranularityNode,
	})
	require.NoError(t, err)
	assert.Empty(t, hits, "no tokens, no hits")

	assert.Equal(t, "token-overlap", engine.Name())
}
