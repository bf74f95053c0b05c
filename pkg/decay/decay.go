// Package decay computes time- and usage-adjusted relevance scores for
// content nodes.
//
// Each node decays exponentially from its baseline relevance with a
// half-life taken from its decay config or derived from the change velocity
// of its highest-confidence taxonomy category. Recent and frequent access
// boosts the score; supersession and lifecycle flags suppress it; the
// configured minimum relevance floors it.
//
// Score is a pure function of the node snapshot and an explicit evaluation
// time, so results are reproducible and testable. The engine also provides
// batch recomputation that persists scores with a one-day expiry, and an
// optional background recalculation loop.
package decay

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// ModelTag is the model_name key under which decay scores are stored.
const ModelTag = "decay-v1"

// Half-life buckets in days, selected by taxonomy change velocity.
const (
	halfLifeSlowDays   = 1095 // velocity <= 3: stable reference material
	halfLifeMediumDays = 365  // velocity <= 7
	halfLifeFastDays   = 180  // velocity > 7: fast-moving topics
)

// defaultVelocity is assumed for nodes with no taxonomy assignment.
const defaultVelocity = 5

// Usage boost parameters.
const (
	recencyBoostMax     = 0.5  // full boost for an access just now
	recencyHalfLifeDays = 30.0 // the boost itself halves every 30 days
	popularityMinCount  = 10   // popularity boost needs more than this many accesses
	popularityDivisor   = 100.0
	popularityBoostMax  = 0.5
)

// Suppression multipliers.
const (
	supersededPenalty = 0.3
	obsoletePenalty   = 0.1
	archivedPenalty   = 0.05
)

// scoreTTL is how long a stored decay score stays valid.
const scoreTTL = 24 * time.Hour

// Input is the per-node snapshot the score function consumes.
type Input struct {
	// CreatedAt is the node's creation time.
	CreatedAt time.Time

	// Decay is the node's decay metadata.
	Decay storage.DecayMetadata

	// ChangeVelocity is the 1-10 rating of the node's highest-confidence
	// taxonomy category. Zero means no category is assigned.
	ChangeVelocity int
}

// BatchResult reports the outcome of a batch recomputation. Failed nodes are
// skipped without aborting the batch.
type BatchResult struct {
	Updated int
	Skipped int
}

// Engine computes and persists decay scores.
//
// Engine is safe for concurrent use. The background loop started by Start
// must be stopped with Stop before discarding the engine.
type Engine struct {
	store  storage.Store
	logger *log.Logger

	// interval between background recomputations.
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the background recomputation interval (default 1 hour).
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithLogger sets the logger used for skipped batch items.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a decay engine over the given store.
func NewEngine(store storage.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		logger:   log.Default(),
		interval: time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HalfLifeDays resolves the effective half-life for an input: an explicit
// decay_config override wins, otherwise the change velocity selects a bucket
// (<=3 -> 1095 days, <=7 -> 365 days, else 180 days). An unassigned node is
// treated as velocity 5.
func HalfLifeDays(in Input) float64 {
	if hl := in.Decay.DecayConfig.HalfLifeDays; hl != nil && *hl > 0 {
		return *hl
	}

	velocity := in.ChangeVelocity
	if velocity == 0 {
		velocity = defaultVelocity
	}

	switch {
	case velocity <= 3:
		return halfLifeSlowDays
	case velocity <= 7:
		return halfLifeMediumDays
	default:
		return halfLifeFastDays
	}
}

// Score computes the decay score for a node snapshot at the given time.
//
// The result is baseline x 0.5^(age/halfLife), multiplied by the usage boost,
// the supersession penalty, and the lifecycle penalties, then floored at the
// configured minimum relevance. The usage boost can push the score above the
// baseline; there is no upper cap.
//
// Score is pure: identical inputs always produce identical results.
func (e *Engine) Score(in Input, at time.Time) float64 {
	cfg := in.Decay.DecayConfig

	ageDays := at.Sub(in.CreatedAt).Hours() / 24
	if ageDays < 0 {
		// Store entries newer than the evaluation time are a caller error;
		// clamp rather than reward them with future relevance.
		ageDays = 0
	}

	baseline := cfg.BaselineRelevance
	if baseline == 0 {
		baseline = 1.0
	}

	halfLife := HalfLifeDays(in)
	score := baseline * math.Pow(0.5, ageDays/halfLife)

	score *= usageFactor(in.Decay.UsageStats, at)

	if len(in.Decay.Supersession.SupersededBy) > 0 {
		score *= supersededPenalty
	}
	if in.Decay.Lifecycle.MarkedObsolete {
		score *= obsoletePenalty
	}
	if in.Decay.Lifecycle.Archived {
		score *= archivedPenalty
	}

	minRelevance := cfg.MinRelevance
	if minRelevance == 0 {
		minRelevance = 0.1
	}
	if score < minRelevance {
		score = minRelevance
	}

	return score
}

// usageFactor returns the multiplicative access boost: a recency component
// that halves every 30 days since the last access, and a diminishing-returns
// popularity component capped at +50% once a node has more than 10 accesses.
func usageFactor(stats storage.UsageStats, at time.Time) float64 {
	factor := 1.0

	if stats.LastAccessed != nil {
		daysSince := at.Sub(*stats.LastAccessed).Hours() / 24
		if daysSince < 0 {
			daysSince = 0
		}
		factor = 1 + recencyBoostMax*math.Pow(0.5, daysSince/recencyHalfLifeDays)
	}

	if stats.AccessCount > popularityMinCount {
		boost := float64(stats.AccessCount) / popularityDivisor
		if boost > popularityBoostMax {
			boost = popularityBoostMax
		}
		factor *= 1 + boost
	}

	return factor
}

// ScoreNode loads a node and its highest-confidence category and computes the
// decay score at the given time. It does not persist anything.
func (e *Engine) ScoreNode(ctx context.Context, nodeID string, at time.Time) (float64, error) {
	node, err := e.store.GetNode(ctx, nodeID)
	if err != nil {
		return 0, err
	}

	in := Input{CreatedAt: node.CreatedAt, Decay: node.Decay}

	cat, _, err := e.store.TopCategory(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	if cat != nil {
		in.ChangeVelocity = cat.ChangeVelocity
	}

	return e.Score(in, at), nil
}

// RecomputeAll recomputes and stores the decay score for every non-archived
// node. Each score is upserted under (node, "decay", ModelTag) with an expiry
// one day out. Re-running immediately produces the same stored values.
//
// A single node's failure does not abort the batch: it is logged, counted in
// Skipped, and the batch continues.
func (e *Engine) RecomputeAll(ctx context.Context) (*BatchResult, error) {
	ids, err := e.store.ListActiveNodeIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	result := &BatchResult{}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		score, err := e.ScoreNode(ctx, id, now)
		if err != nil {
			e.logger.Printf("decay: skipping node %s: %v", id, err)
			result.Skipped++
			continue
		}

		err = e.store.UpsertScore(ctx, &storage.NodeScore{
			NodeID:     id,
			ScoreType:  storage.ScoreDecay,
			ModelName:  ModelTag,
			Score:      score,
			ComputedAt: now,
			ExpiresAt:  now.Add(scoreTTL),
		})
		if err != nil {
			e.logger.Printf("decay: skipping node %s: %v", id, err)
			result.Skipped++
			continue
		}

		result.Updated++
	}

	return result, nil
}

// CleanupExpiredScores deletes stored scores whose expiry has passed and
// returns how many were removed.
func (e *Engine) CleanupExpiredScores(ctx context.Context) (int64, error) {
	return e.store.DeleteExpiredScores(ctx, time.Now())
}

// Start launches the background recomputation loop. Each tick runs
// RecomputeAll followed by CleanupExpiredScores. Calling Start on a running
// engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := e.RecomputeAll(ctx); err != nil && ctx.Err() == nil {
					e.logger.Printf("decay: batch recompute: %v", err)
				}
				if _, err := e.CleanupExpiredScores(ctx); err != nil && ctx.Err() == nil {
					e.logger.Printf("decay: score cleanup: %v", err)
				}
			}
		}
	}()
}

// Stop stops the background loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		e.wg.Wait()
	}
}
