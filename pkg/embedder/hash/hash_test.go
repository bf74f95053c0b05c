package hash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/embedder/hash"
)

func TestEmbedIsDeterministic(t *testing.T) {
	provider := hash.NewProvider(64)
	ctx := context.Background()

	first, err := provider.Embed(ctx, "the same text")
	require.NoError(t, err)
	second, err := provider.Embed(ctx, "the same text")
	require.NoError(t, err)
	assert.Equal(t, first, second, "same text yields the same vector")

	other, err := provider.Embed(ctx, "different text")
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "different text yields a different vector")
}

func TestEmbedDimensionsAndRange(t *testing.T) {
	provider := hash.NewProvider(128)
	assert.Equal(t, 128, provider.Dimensions())

	vec, err := provider.Embed(context.Background(), "some text")
	require.NoError(t, err)
	require.Len(t, vec, 128)
	for i, v := range vec {
		assert.GreaterOrEqual(t, v, -1.0, "component %d", i)
		assert.LessOrEqual(t, v, 1.0, "component %d", i)
	}
}

func TestEmbedBatch(t *testing.T) {
	provider := hash.NewProvider(32)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	vectors, err := provider.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		single, err := provider.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, vectors[i], "batch matches single embedding for %q", text)
	}

	empty, err := provider.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClose(t *testing.T) {
	provider := hash.NewProvider(8)
	assert.NoError(t, provider.Close())
}
