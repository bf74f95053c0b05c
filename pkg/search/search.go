// Package search combines lexical relevance and vector similarity into a
// single ranked result list, at node and chunk granularity.
//
// The hybrid score is a weighted blend: (1-alpha) x lexical + alpha x vector,
// with candidates outer-joined across the two signal sources (a candidate
// missing from one side contributes 0 there). Either signal source failing
// degrades the ranking to the other side alone instead of failing the
// search. An optional decay-weighted variant multiplies each candidate's
// current decay score into the blend before sorting.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/braingraph/braingraph-go/pkg/embedder"
	"github.com/braingraph/braingraph-go/pkg/modelselect"
	"github.com/braingraph/braingraph-go/pkg/storage"
)

// ErrInvalidRequest indicates an out-of-range alpha, non-positive limit, or
// an empty query.
var ErrInvalidRequest = errors.New("invalid search request")

// candidateFactor widens the per-signal fetch beyond the requested limit so
// the blend has enough overlap to rank from.
const candidateFactor = 4

// Node-level and chunk-level source-part categories.
var (
	nodeParts  = []string{modelselect.PartFull, modelselect.PartTitle, modelselect.PartSummary}
	chunkParts = []string{"chunk:content", "chunk:summary"}
)

// Request describes one search.
type Request struct {
	// Query is the lexical query text. Also embedded for the vector side
	// when QueryEmbedding is absent.
	Query string

	// QueryEmbedding is an optional pre-computed query vector.
	QueryEmbedding []float64

	// ModelName selects the embedding space for the vector side. Defaults
	// to the text model.
	ModelName string

	// Alpha weighs vector similarity against lexical relevance, in [0, 1]:
	// 0 is pure lexical, 1 is pure vector.
	Alpha float64

	// Limit caps the result list. Must be positive.
	Limit int

	// Types restricts candidates to these node types (empty means all).
	Types []storage.NodeType

	// Language hints the lexical engine's text-search configuration.
	Language string

	// UseDecay multiplies each candidate's current decay score into the
	// hybrid score before sorting.
	UseDecay bool

	// ContextSize attaches this many preceding/following chunks to each
	// chunk-level hit. Ignored for node-level search.
	ContextSize int
}

// Result is one ranked hit. ChunkID, Content, Summary, and the context
// fields are populated for chunk-level search only.
type Result struct {
	NodeID  string
	ChunkID string

	Type    storage.NodeType
	Title   string
	Content string
	Summary string

	LexicalScore float64
	VectorScore  float64
	HybridScore  float64
	DecayScore   float64 // populated when UseDecay is set; 1.0 when no stored score exists

	ContextBefore string
	ContextAfter  string
}

// Ranker performs hybrid search over a store.
//
// The lexical engine is chosen at construction: callers wire StoreLexical
// when the backend has native full-text ranking and TokenOverlap otherwise.
type Ranker struct {
	store    storage.Store
	lexical  Lexical
	embedder embedder.Provider
	logger   *log.Logger
}

// NewRanker creates a hybrid ranker. The embedder may be nil, in which case
// every vector-weighted request must carry a QueryEmbedding.
func NewRanker(store storage.Store, lexical Lexical, provider embedder.Provider) *Ranker {
	return &Ranker{
		store:    store,
		lexical:  lexical,
		embedder: provider,
		logger:   log.Default(),
	}
}

// SetLogger replaces the logger used for degraded-signal warnings.
func (r *Ranker) SetLogger(l *log.Logger) { r.logger = l }

// SearchNodes ranks whole nodes against the request.
func (r *Ranker) SearchNodes(ctx context.Context, req *Request) ([]*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	lex := r.lexicalScores(ctx, req, storage.GranularityNode)
	vec := r.vectorScores(ctx, req, storage.GranularityNode, nodeParts)

	candidates := blend(lex, vec, req.Alpha)
	if len(candidates) == 0 {
		return nil, nil
	}

	if req.UseDecay {
		if err := r.applyNodeDecay(ctx, candidates); err != nil {
			return nil, err
		}
	}

	ranked := rank(candidates, req.Limit)

	ids := make([]string, len(ranked))
	for i, c := range ranked {
		ids[i] = c.id
	}
	briefs, err := r.store.NodeBriefs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("SearchNodes: %w", err)
	}

	results := make([]*Result, 0, len(ranked))
	for _, c := range ranked {
		res := &Result{
			NodeID:       c.id,
			LexicalScore: c.lexical,
			VectorScore:  c.vector,
			HybridScore:  c.hybrid,
			DecayScore:   c.decay,
		}
		if b, ok := briefs[c.id]; ok {
			res.Type = b.Type
			res.Title = b.Title
		}
		results = append(results, res)
	}
	return results, nil
}

// SearchChunks ranks chunks against the request. When ContextSize > 0, each
// hit carries the content of that many preceding and following chunks as
// context, without re-ranking them individually.
func (r *Ranker) SearchChunks(ctx context.Context, req *Request) ([]*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	lex := r.lexicalScores(ctx, req, storage.GranularityChunk)
	vec := r.vectorScores(ctx, req, storage.GranularityChunk, chunkParts)

	candidates := blend(lex, vec, req.Alpha)
	if len(candidates) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.id)
	}
	briefs, err := r.store.ChunkBriefs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("SearchChunks: %w", err)
	}

	if req.UseDecay {
		if err := r.applyChunkDecay(ctx, candidates, briefs); err != nil {
			return nil, err
		}
	}

	ranked := rank(candidates, req.Limit)

	results := make([]*Result, 0, len(ranked))
	for _, c := range ranked {
		res := &Result{
			ChunkID:      c.id,
			LexicalScore: c.lexical,
			VectorScore:  c.vector,
			HybridScore:  c.hybrid,
			DecayScore:   c.decay,
		}
		if b, ok := briefs[c.id]; ok {
			res.NodeID = b.NodeID
			res.Title = b.NodeTitle
			res.Content = b.Content
			res.Summary = b.Summary
		}
		if req.ContextSize > 0 {
			before, after, err := r.chunkContext(ctx, c.id, req.ContextSize)
			if err == nil {
				res.ContextBefore = before
				res.ContextAfter = after
			} else {
				r.logger.Printf("search: context for chunk %s: %v", c.id, err)
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// ChunkWithContext loads a chunk together with the content of up to n
// preceding and following chunks.
func (r *Ranker) ChunkWithContext(ctx context.Context, chunkID string, n int) (*Result, error) {
	chunk, err := r.store.GetChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ChunkID: chunk.ID,
		NodeID:  chunk.NodeID,
		Content: chunk.Content,
		Summary: chunk.Summary,
	}
	if n > 0 {
		before, after, err := r.chunkContext(ctx, chunkID, n)
		if err != nil {
			return nil, err
		}
		res.ContextBefore = before
		res.ContextAfter = after
	}
	return res, nil
}

// candidate accumulates per-signal scores during blending.
type candidate struct {
	id      string
	lexical float64
	vector  float64
	hybrid  float64
	decay   float64
}

func validate(req *Request) error {
	if req.Alpha < 0 || req.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidRequest, req.Alpha)
	}
	if req.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Query) == "" && req.QueryEmbedding == nil {
		return fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	return nil
}

// lexicalScores runs the lexical engine; on failure it logs and returns an
// empty score set so the vector side alone can still produce a ranking.
// Skipped entirely at alpha == 1 (pure vector).
func (r *Ranker) lexicalScores(ctx context.Context, req *Request, g storage.Granularity) map[string]float64 {
	if req.Alpha == 1 {
		return nil
	}

	hits, err := r.lexical.Search(ctx, req.Query, &storage.LexicalOptions{
		Granularity: g,
		Types:       req.Types,
		Language:    req.Language,
		Limit:       req.Limit * candidateFactor,
	})
	if err != nil {
		r.logger.Printf("search: lexical engine %s unavailable: %v", r.lexical.Name(), err)
		return nil
	}

	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		scores[h.ID] = h.Score
	}
	return scores
}

// vectorScores runs nearest-neighbor search; on failure it logs and returns
// an empty score set. Skipped entirely at alpha == 0 (pure lexical). Cosine
// distance maps to a [0, 1] similarity via 1 - distance, clamped.
func (r *Ranker) vectorScores(ctx context.Context, req *Request, g storage.Granularity, parts []string) map[string]float64 {
	if req.Alpha == 0 {
		return nil
	}

	vector := req.QueryEmbedding
	if vector == nil {
		if r.embedder == nil {
			r.logger.Printf("search: no query embedding and no embedder configured")
			return nil
		}
		var err error
		vector, err = r.embedder.Embed(ctx, req.Query)
		if err != nil {
			r.logger.Printf("search: query embedding failed: %v", err)
			return nil
		}
	}

	model := req.ModelName
	if model == "" {
		model = modelselect.ModelTextJina
	}

	hits, err := r.store.SearchVector(ctx, vector, &storage.VectorOptions{
		Granularity: g,
		ModelName:   model,
		SourceParts: parts,
		Types:       req.Types,
		Limit:       req.Limit * candidateFactor,
	})
	if err != nil {
		r.logger.Printf("search: vector index unavailable: %v", err)
		return nil
	}

	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		if sim < 0 {
			sim = 0
		}
		if sim > 1 {
			sim = 1
		}
		scores[h.ID] = sim
	}
	return scores
}

// blend outer-joins the two score sets: a candidate present on one side only
// contributes 0 on the other.
func blend(lex, vec map[string]float64, alpha float64) []*candidate {
	merged := make(map[string]*candidate, len(lex)+len(vec))
	for id, s := range lex {
		merged[id] = &candidate{id: id, lexical: s, decay: 1}
	}
	for id, s := range vec {
		c, ok := merged[id]
		if !ok {
			c = &candidate{id: id, decay: 1}
			merged[id] = c
		}
		c.vector = s
	}

	out := make([]*candidate, 0, len(merged))
	for _, c := range merged {
		c.hybrid = (1-alpha)*c.lexical + alpha*c.vector
		out = append(out, c)
	}
	return out
}

// applyNodeDecay multiplies each candidate's current decay score into its
// hybrid score. Candidates without a live stored score keep a neutral 1.0.
func (r *Ranker) applyNodeDecay(ctx context.Context, candidates []*candidate) error {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}

	scores, err := r.store.CurrentScores(ctx, ids, storage.ScoreDecay, time.Now())
	if err != nil {
		return fmt.Errorf("applyNodeDecay: %w", err)
	}

	for _, c := range candidates {
		if s, ok := scores[c.id]; ok {
			c.decay = s
		}
		c.hybrid *= c.decay
	}
	return nil
}

// applyChunkDecay weights chunk candidates by their owning node's decay
// score.
func (r *Ranker) applyChunkDecay(ctx context.Context, candidates []*candidate, briefs map[string]storage.ChunkBrief) error {
	nodeIDs := make([]string, 0, len(candidates))
	seen := make(map[string]bool)
	for _, c := range candidates {
		if b, ok := briefs[c.id]; ok && !seen[b.NodeID] {
			seen[b.NodeID] = true
			nodeIDs = append(nodeIDs, b.NodeID)
		}
	}

	scores, err := r.store.CurrentScores(ctx, nodeIDs, storage.ScoreDecay, time.Now())
	if err != nil {
		return fmt.Errorf("applyChunkDecay: %w", err)
	}

	for _, c := range candidates {
		if b, ok := briefs[c.id]; ok {
			if s, ok := scores[b.NodeID]; ok {
				c.decay = s
			}
		}
		c.hybrid *= c.decay
	}
	return nil
}

// rank sorts candidates descending by hybrid score with a deterministic
// ascending-ID tie-break, then truncates to limit.
func rank(candidates []*candidate, limit int) []*candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hybrid != candidates[j].hybrid {
			return candidates[i].hybrid > candidates[j].hybrid
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}

// chunkContext concatenates the content of up to n chunks on each side of
// the given chunk.
func (r *Ranker) chunkContext(ctx context.Context, chunkID string, n int) (string, string, error) {
	before, after, err := r.store.AdjacentChunks(ctx, chunkID, n)
	if err != nil {
		return "", "", err
	}

	joinContent := func(chunks []*storage.Chunk) string {
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			parts = append(parts, c.Content)
		}
		return strings.Join(parts, "\n")
	}
	return joinContent(before), joinContent(after), nil
}
