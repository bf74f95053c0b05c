package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// Lexical scores candidates against query text, normalized to [0, 1].
//
// Two implementations exist: StoreLexical uses the backend's native
// full-text ranking (FTS5 bm25 on SQLite, ts_rank_cd on PostgreSQL), and
// TokenOverlap is a portable fallback for backends without one. The choice
// is made once at construction time, not per call.
type Lexical interface {
	// Name identifies the engine in results and logs.
	Name() string

	// Search returns scored candidates for the query.
	Search(ctx context.Context, query string, opts *storage.LexicalOptions) ([]storage.LexicalHit, error)
}

// StoreLexical delegates to the store's native full-text index.
type StoreLexical struct {
	store storage.Store
}

// NewStoreLexical wraps a store's native lexical engine.
func NewStoreLexical(store storage.Store) *StoreLexical {
	return &StoreLexical{store: store}
}

// Name implements Lexical.
func (s *StoreLexical) Name() string { return "store" }

// Search implements Lexical.
func (s *StoreLexical) Search(ctx context.Context, query string, opts *storage.LexicalOptions) ([]storage.LexicalHit, error) {
	return s.store.SearchLexical(ctx, query, opts)
}

// TokenOverlap ranks candidates by the fraction of query tokens present in
// the candidate text. It is the fallback lexical engine for backends without
// native full-text ranking, and is deliberately simple: lowercase tokens,
// exact membership, score = matched / total query tokens.
type TokenOverlap struct {
	store storage.Store
}

// NewTokenOverlap creates the fallback lexical engine over the given store.
func NewTokenOverlap(store storage.Store) *TokenOverlap {
	return &TokenOverlap{store: store}
}

// Name implements Lexical.
func (t *TokenOverlap) Name() string { return "token-overlap" }

// Search implements Lexical.
func (t *TokenOverlap) Search(ctx context.Context, query string, opts *storage.LexicalOptions) ([]storage.LexicalHit, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	docs, err := t.store.ListTexts(ctx, opts.Granularity, opts.Types)
	if err != nil {
		return nil, err
	}

	var hits []storage.LexicalHit
	for _, doc := range docs {
		docTokens := tokenSet(doc.Text)
		matched := 0
		for _, tok := range queryTokens {
			if docTokens[tok] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, storage.LexicalHit{
			ID:    doc.ID,
			Score: float64(matched) / float64(len(queryTokens)),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// tokenize splits text into lowercase word tokens, keeping order and
// duplicates.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenSet is the membership set of a text's tokens.
func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		set[tok] = true
	}
	return set
}
