package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// SearchLexical runs an FTS5 full-text query at the requested granularity.
// Scores are normalized so the best hit in the result set is 1.0; bm25 ranks
// lower-is-better, so raw relevance is the negated rank.
func (c *Client) SearchLexical(ctx context.Context, query string, opts *storage.LexicalOptions) ([]storage.LexicalHit, error) {
	if !c.fts {
		return nil, storage.ErrLexicalUnsupported
	}
	if opts == nil {
		opts = &storage.LexicalOptions{}
	}
	match := matchQuery(query)
	if match == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	var stmt string
	args := []interface{}{match}
	switch opts.Granularity {
	case storage.GranularityChunk:
		stmt = `
			SELECT f.chunk_id, bm25(chunks_fts) AS rank
			FROM chunks_fts f
			JOIN chunks c ON c.id = f.chunk_id
			JOIN nodes n ON n.id = c.node_id
			WHERE chunks_fts MATCH ?`
		if len(opts.Types) > 0 {
			stmt += ` AND n.type IN (` + placeholders(len(opts.Types)) + `)`
			args = append(args, typeArgs(opts.Types)...)
		}
	default:
		stmt = `
			SELECT f.node_id, bm25(nodes_fts) AS rank
			FROM nodes_fts f
			JOIN nodes n ON n.id = f.node_id
			WHERE nodes_fts MATCH ?`
		if len(opts.Types) > 0 {
			stmt += ` AND n.type IN (` + placeholders(len(opts.Types)) + `)`
			args = append(args, typeArgs(opts.Types)...)
		}
	}
	stmt += ` ORDER BY rank ASC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchLexical: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.LexicalHit
	for rows.Next() {
		var hit storage.LexicalHit
		var rank float64
		if err := rows.Scan(&hit.ID, &rank); err != nil {
			return nil, fmt.Errorf("SearchLexical: %w", err)
		}
		hit.Score = -rank
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchLexical: %w", err)
	}

	normalizeScores(hits)
	return hits, nil
}

// normalizeScores rescales raw relevance so the best hit scores 1.0.
// Non-positive raws (possible with bm25 on degenerate corpora) are shifted
// positive first.
func normalizeScores(hits []storage.LexicalHit) {
	if len(hits) == 0 {
		return
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	shift := 0.0
	if min <= 0 {
		shift = -min + 1e-9
	}
	denom := max + shift
	if denom == 0 {
		for i := range hits {
			hits[i].Score = 1.0
		}
		return
	}
	for i := range hits {
		hits[i].Score = (hits[i].Score + shift) / denom
	}
}

// SearchVector loads candidate vectors for the model and source parts,
// computes cosine distance in memory, and returns the nearest hits ascending
// by distance. Multiple vectors per owner collapse to the minimum distance.
func (c *Client) SearchVector(ctx context.Context, vector []float64, opts *storage.VectorOptions) ([]storage.VectorHit, error) {
	if opts == nil || opts.ModelName == "" {
		return nil, fmt.Errorf("SearchVector: model name required")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	stmt := `
		SELECT e.node_id, e.chunk_id, e.embedding
		FROM embeddings e
		JOIN nodes n ON n.id = e.node_id
		WHERE e.model_name = ?`
	args := []interface{}{opts.ModelName}

	if len(opts.SourceParts) > 0 {
		stmt += ` AND e.source_part IN (` + placeholders(len(opts.SourceParts)) + `)`
		args = append(args, stringArgs(opts.SourceParts)...)
	}
	if opts.Granularity == storage.GranularityChunk {
		stmt += ` AND e.chunk_id IS NOT NULL`
	} else {
		stmt += ` AND e.chunk_id IS NULL`
	}
	if len(opts.Types) > 0 {
		stmt += ` AND n.type IN (` + placeholders(len(opts.Types)) + `)`
		args = append(args, typeArgs(opts.Types)...)
	}

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchVector: %w", err)
	}
	defer func() { _ = rows.Close() }()

	best := make(map[string]float64)
	for rows.Next() {
		var nodeID string
		var chunkID *string
		var vectorJSON string
		if err := rows.Scan(&nodeID, &chunkID, &vectorJSON); err != nil {
			return nil, fmt.Errorf("SearchVector: %w", err)
		}

		var candidate []float64
		if err := json.Unmarshal([]byte(vectorJSON), &candidate); err != nil {
			return nil, fmt.Errorf("SearchVector: parse embedding: %w", err)
		}

		id := nodeID
		if opts.Granularity == storage.GranularityChunk && chunkID != nil {
			id = *chunkID
		}

		distance := 1 - cosineSimilarity(vector, candidate)
		if prev, ok := best[id]; !ok || distance < prev {
			best[id] = distance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchVector: %w", err)
	}

	hits := make([]storage.VectorHit, 0, len(best))
	for id, distance := range best {
		hits = append(hits, storage.VectorHit{ID: id, Distance: distance})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListTexts returns raw text at the requested granularity for the
// token-overlap lexical fallback.
func (c *Client) ListTexts(ctx context.Context, g storage.Granularity, types []storage.NodeType) ([]storage.TextDoc, error) {
	var stmt string
	var args []interface{}
	if g == storage.GranularityChunk {
		stmt = `
			SELECT c.id, c.content || ' ' || COALESCE(c.summary, '')
			FROM chunks c
			JOIN nodes n ON n.id = c.node_id`
		if len(types) > 0 {
			stmt += ` WHERE n.type IN (` + placeholders(len(types)) + `)`
			args = append(args, typeArgs(types)...)
		}
		stmt += ` ORDER BY c.id`
	} else {
		stmt = `SELECT id, title || ' ' || COALESCE(text_content, '') FROM nodes`
		if len(types) > 0 {
			stmt += ` WHERE type IN (` + placeholders(len(types)) + `)`
			args = append(args, typeArgs(types)...)
		}
		stmt += ` ORDER BY id`
	}

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("ListTexts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []storage.TextDoc
	for rows.Next() {
		var doc storage.TextDoc
		if err := rows.Scan(&doc.ID, &doc.Text); err != nil {
			return nil, fmt.Errorf("ListTexts: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func typeArgs(types []storage.NodeType) []interface{} {
	args := make([]interface{}, len(types))
	for i, t := range types {
		args[i] = string(t)
	}
	return args
}
