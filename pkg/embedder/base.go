// Package embedder defines the interface to the external embedding
// capability: a service that accepts content and returns a fixed-dimension
// vector.
//
// The graph core only consumes already-stored vectors; providers here are
// used upstream (embedding generation jobs) and by the search ranker to
// embed query text when the caller supplies none.
package embedder

import "context"

// Provider converts content into fixed-dimension vectors.
type Provider interface {
	// Embed converts a single text into a vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into vectors, preserving order.
	// Prefer it over repeated Embed calls when a provider can batch
	// requests.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the fixed output dimension of this provider.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
