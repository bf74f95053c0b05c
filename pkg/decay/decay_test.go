package decay_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/decay"
	"github.com/braingraph/braingraph-go/pkg/storage"
	"github.com/braingraph/braingraph-go/pkg/storage/sqlite"
)

func floatPtr(v float64) *float64 { return &v }

func baseInput(createdAt time.Time, halfLife float64) decay.Input {
	return decay.Input{
		CreatedAt: createdAt,
		Decay: storage.DecayMetadata{
			DecayConfig: storage.DecayConfig{
				Method:            "exponential",
				HalfLifeDays:      floatPtr(halfLife),
				BaselineRelevance: 1.0,
				MinRelevance:      0.1,
			},
		},
	}
}

func TestScoreAgeDecay(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	// 400-day-old node with a 365-day half-life, no access, no flags.
	in := baseInput(now.AddDate(0, 0, -400), 365)
	score := engine.Score(in, now)
	assert.InDelta(t, 0.459, score, 0.002, "pure age decay of a 400-day node")
}

func TestScoreObsoleteFloorsAtMinRelevance(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	in := baseInput(now.AddDate(0, 0, -400), 365)
	in.Decay.Lifecycle.MarkedObsolete = true

	// 0.459 x 0.1 would be 0.046; the floor wins.
	score := engine.Score(in, now)
	assert.Equal(t, 0.1, score, "obsolete penalty pushes below the floor")
}

func TestScoreUsageBoostExceedsBaseline(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	in := baseInput(now.AddDate(0, 0, -10), 365)
	lastAccessed := now.AddDate(0, 0, -2)
	in.Decay.UsageStats = storage.UsageStats{
		AccessCount:  50,
		LastAccessed: &lastAccessed,
	}

	// base ~0.981, recency boost ~1.477, popularity x1.5 -> ~2.174.
	score := engine.Score(in, now)
	assert.InDelta(t, 2.174, score, 0.01, "heavy recent usage lifts the score above baseline")
}

func TestScoreFreshNodeAtBaseline(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	in := baseInput(now, 365)
	assert.InDelta(t, 1.0, engine.Score(in, now), 1e-9)

	// Creation timestamps after the evaluation time clamp to age zero.
	in = baseInput(now.Add(48*time.Hour), 365)
	assert.InDelta(t, 1.0, engine.Score(in, now), 1e-9, "future created_at clamps to zero age")
}

func TestScoreIsPure(t *testing.T) {
	engine := decay.NewEngine(nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in := baseInput(at.AddDate(0, 0, -200), 365)
	first := engine.Score(in, at)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, engine.Score(in, at), "identical inputs must score identically")
	}
}

func TestScoreMonotoneInAge(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	prev := engine.Score(baseInput(now, 365), now)
	for _, days := range []int{30, 90, 180, 365, 730} {
		score := engine.Score(baseInput(now.AddDate(0, 0, -days), 365), now)
		assert.LessOrEqual(t, score, prev, "older nodes must not score higher (age %d)", days)
		prev = score
	}
}

func TestScorePenaltiesStack(t *testing.T) {
	engine := decay.NewEngine(nil)
	now := time.Now()

	// A fresh node so the penalties, not age, drive the result.
	in := baseInput(now, 365)
	in.Decay.DecayConfig.MinRelevance = 0.001
	in.Decay.Supersession.SupersededBy = []string{"n2"}
	in.Decay.Lifecycle.MarkedObsolete = true
	in.Decay.Lifecycle.Archived = true

	// 1.0 x 0.3 x 0.1 x 0.05 = 0.0015.
	score := engine.Score(in, now)
	assert.InDelta(t, 0.0015, score, 1e-9, "supersession and lifecycle penalties multiply")
}

func TestHalfLifeDays(t *testing.T) {
	cases := []struct {
		name     string
		velocity int
		override *float64
		want     float64
	}{
		{"explicit override wins", 9, floatPtr(42), 42},
		{"slow topics", 2, nil, 1095},
		{"medium topics", 5, nil, 365},
		{"fast topics", 9, nil, 180},
		{"unassigned defaults to medium", 0, nil, 365},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := decay.Input{
				ChangeVelocity: tc.velocity,
				Decay: storage.DecayMetadata{
					DecayConfig: storage.DecayConfig{HalfLifeDays: tc.override},
				},
			}
			assert.Equal(t, tc.want, decay.HalfLifeDays(in))
		})
	}
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.NewClient(&sqlite.Config{
		DBPath: filepath.Join(t.TempDir(), "decay_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScoreNodeUsesTopCategoryVelocity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := decay.NewEngine(store)

	node := &storage.Node{
		ID:        "node-fast",
		Type:      storage.NodeArticle,
		Title:     "Framework release notes",
		CreatedAt: time.Now().AddDate(0, 0, -180),
	}
	require.NoError(t, store.CreateNode(ctx, node))

	cat := &storage.Category{
		Name:            "frameworks",
		Path:            "tech/frameworks",
		Level:           2,
		TopicImportance: 6,
		ChangeVelocity:  9,
		UsageFocus:      5,
	}
	require.NoError(t, store.CreateCategory(ctx, cat))
	require.NoError(t, store.AssignCategory(ctx, &storage.CategoryAssignment{
		NodeID:     node.ID,
		CategoryID: cat.ID,
		Confidence: 0.9,
		AssignedBy: "user",
	}))

	now := time.Now()
	score, err := engine.ScoreNode(ctx, node.ID, now)
	require.NoError(t, err)

	// 180 days at the fast 180-day half-life is one halving.
	assert.InDelta(t, 0.5, score, 0.01)
}

func TestRecomputeAllPersistsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := decay.NewEngine(store)

	for _, id := range []string{"n1", "n2", "n3"} {
		require.NoError(t, store.CreateNode(ctx, &storage.Node{
			ID:        id,
			Type:      storage.NodeNote,
			Title:     "note " + id,
			CreatedAt: time.Now().AddDate(0, 0, -30),
		}))
	}

	result, err := engine.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 0, result.Skipped)

	scores, err := store.CurrentScores(ctx, []string{"n1", "n2", "n3"}, storage.ScoreDecay, time.Now())
	require.NoError(t, err)
	assert.Len(t, scores, 3)

	// Re-running immediately yields the same stored values.
	again, err := engine.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Updated)

	scoresAgain, err := store.CurrentScores(ctx, []string{"n1", "n2", "n3"}, storage.ScoreDecay, time.Now())
	require.NoError(t, err)
	for id, s := range scores {
		assert.InDelta(t, s, scoresAgain[id], 1e-6, "node %s", id)
	}
}

func TestRecomputeAllSkipsArchivedNodes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := decay.NewEngine(store)

	active := &storage.Node{ID: "active", Type: storage.NodeNote, Title: "active"}
	require.NoError(t, store.CreateNode(ctx, active))

	archived := &storage.Node{ID: "archived", Type: storage.NodeNote, Title: "archived"}
	archived.Decay = storage.DefaultDecayMetadata()
	archived.Decay.Lifecycle.Archived = true
	require.NoError(t, store.CreateNode(ctx, archived))

	result, err := engine.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated, "archived nodes stay out of the batch")

	scores, err := store.CurrentScores(ctx, []string{"active", "archived"}, storage.ScoreDecay, time.Now())
	require.NoError(t, err)
	assert.Contains(t, scores, "active")
	assert.NotContains(t, scores, "archived")
}

func TestCleanupExpiredScores(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	engine := decay.NewEngine(store)

	require.NoError(t, store.CreateNode(ctx, &storage.Node{
		ID: "n1", Type: storage.NodeNote, Title: "note",
	}))

	now := time.Now()
	require.NoError(t, store.UpsertScore(ctx, &storage.NodeScore{
		NodeID:     "n1",
		ScoreType:  storage.ScoreDecay,
		ModelName:  decay.ModelTag,
		Score:      0.8,
		ComputedAt: now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-24 * time.Hour),
	}))

	removed, err := engine.CleanupExpiredScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
