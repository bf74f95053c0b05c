// Package hash provides a deterministic fallback embedding provider based on
// SHA-256 hashing.
//
// It produces stable pseudo-vectors with values roughly in [-1, 1] without
// any external service, which makes offline operation and reproducible tests
// possible. The vectors carry no semantic signal; use a real encoder in
// production.
package hash

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// Provider is a deterministic hash-based embedding provider.
type Provider struct {
	dimensions int
}

// NewProvider creates a hash provider with the given output dimension.
func NewProvider(dimensions int) *Provider {
	return &Provider{dimensions: dimensions}
}

// Embed returns a deterministic pseudo-vector for the text. The same text
// always yields the same vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float64, error) {
	base := sha256.Sum256([]byte(text))

	values := make([]float64, p.dimensions)
	var idx [4]byte
	for i := 0; i < p.dimensions; i++ {
		binary.BigEndian.PutUint32(idx[:], uint32(i))
		seed := sha256.Sum256(append(base[:], idx[:]...))
		v := binary.BigEndian.Uint32(seed[:4])
		values[i] = float64(v%2000)/1000.0 - 1.0
	}
	return values, nil
}

// EmbedBatch embeds each text independently.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the configured output dimension.
func (p *Provider) Dimensions() int { return p.dimensions }

// Close is a no-op.
func (p *Provider) Close() error { return nil }
