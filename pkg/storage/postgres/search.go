package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/braingraph/braingraph-go/pkg/storage"

	"github.com/lib/pq"
)

// tsConfig maps language hints to text-search configurations. Unknown hints
// fall back to english.
func tsConfig(language string) string {
	switch language {
	case "", "en", "english":
		return "english"
	case "de", "german":
		return "german"
	case "fr", "french":
		return "french"
	case "es", "spanish":
		return "spanish"
	case "ru", "russian":
		return "russian"
	default:
		return "english"
	}
}

// SearchLexical runs a tsvector full-text query ranked with ts_rank_cd.
// Scores are normalized so the best hit in the result set is 1.0.
func (c *Client) SearchLexical(ctx context.Context, query string, opts *storage.LexicalOptions) ([]storage.LexicalHit, error) {
	if opts == nil {
		opts = &storage.LexicalOptions{}
	}
	if query == "" {
		return nil, nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	config := tsConfig(opts.Language)

	var stmt string
	args := []interface{}{config, query}
	if opts.Granularity == storage.GranularityChunk {
		stmt = `
			SELECT c.id,
			       ts_rank_cd(to_tsvector($1::regconfig, c.content || ' ' || COALESCE(c.summary, '')),
			                  plainto_tsquery($1::regconfig, $2)) AS rank
			FROM chunks c
			JOIN nodes n ON n.id = c.node_id
			WHERE to_tsvector($1::regconfig, c.content || ' ' || COALESCE(c.summary, ''))
			      @@ plainto_tsquery($1::regconfig, $2)`
		if len(opts.Types) > 0 {
			args = append(args, pq.Array(typeStrings(opts.Types)))
			stmt += fmt.Sprintf(` AND n.type = ANY($%d)`, len(args))
		}
	} else {
		stmt = `
			SELECT n.id,
			       ts_rank_cd(to_tsvector($1::regconfig, n.title || ' ' || COALESCE(n.text_content, '')),
			                  plainto_tsquery($1::regconfig, $2)) AS rank
			FROM nodes n
			WHERE to_tsvector($1::regconfig, n.title || ' ' || COALESCE(n.text_content, ''))
			      @@ plainto_tsquery($1::regconfig, $2)`
		if len(opts.Types) > 0 {
			args = append(args, pq.Array(typeStrings(opts.Types)))
			stmt += fmt.Sprintf(` AND n.type = ANY($%d)`, len(args))
		}
	}
	args = append(args, limit)
	stmt += fmt.Sprintf(` ORDER BY rank DESC LIMIT $%d`, len(args))

	rows, err := c.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("SearchLexical: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []storage.LexicalHit
	for rows.Next() {
		var hit storage.LexicalHit
		if err := rows.Scan(&hit.ID, &hit.Score); err != nil {
			return nil, fmt.Errorf("SearchLexical: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchLexical: %w", err)
	}

	normalizeScores(hits)
	return hits, nil
}

// normalizeScores rescales raw ts_rank_cd relevance so the best hit scores
// 1.0.
func normalizeScores(hits []storage.LexicalHit) {
	if len(hits) == 0 {
		return
	}
	max := hits[0].Score
	for _, h := range hits[1:] {
		if h.Score > max {
			max = h.Score
		}
	}
	if max <= 0 {
		for i := range hits {
			hits[i].Score = 1.0
		}
		return
	}
	for i := range hits {
		hits[i].Score /= max
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
		WHERE e.model_name = $1`
	args := []interface{}{opts.ModelName}

	if len(opts.SourceParts) > 0 {
		args = append(args, pq.Array(opts.SourceParts))
		stmt += fmt.Sprintf(` AND e.source_part = ANY($%d)`, len(args))
	}
	if opts.Granularity == storage.GranularityChunk {
		stmt += ` AND e.chunk_id IS NOT NULL`
	} else {
		stmt += ` AND e.chunk_id IS NULL`
	}
	if len(opts.Types) > 0 {
		args = append(args, pq.Array(typeStrings(opts.Types)))
		stmt += fmt.Sprintf(` AND n.type = ANY($%d)`, len(args))
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
			args = append(args, pq.Array(typeStrings(types)))
			stmt += fmt.Sprintf(` WHERE n.type = ANY($%d)`, len(args))
		}
		stmt += ` ORDER BY c.id`
	} else {
		stmt = `SELECT id, title || ' ' || COALESCE(text_content, '') FROM nodes`
		if len(types) > 0 {
			args = append(args, pq.Array(typeStrings(types)))
			stmt += fmt.Sprintf(` WHERE type = ANY($%d)`, len(args))
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

func typeStrings(types []storage.NodeType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
