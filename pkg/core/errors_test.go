package core_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braingraph/braingraph-go/pkg/core"
	"github.com/braingraph/braingraph-go/pkg/storage"
)

func TestGraphErrorFormat(t *testing.T) {
	err := &core.GraphError{Op: "CreateNode", Err: core.ErrDuplicate}
	assert.Equal(t, "braingraph: CreateNode: duplicate record", err.Error())
}

func TestGraphErrorUnwrap(t *testing.T) {
	wrapped := fmt.Errorf("GetNode: %w", storage.ErrNotFound)
	err := core.NewGraphError("GetNode", wrapped)

	assert.ErrorIs(t, err, storage.ErrNotFound, "errors.Is sees through the wrapping")
	assert.ErrorIs(t, err, core.ErrNotFound, "core sentinel aliases the storage sentinel")

	var graphErr *core.GraphError
	require.ErrorAs(t, err, &graphErr)
	assert.Equal(t, "GetNode", graphErr.Op)
}

func TestNewGraphErrorNil(t *testing.T) {
	assert.Nil(t, core.NewGraphError("Op", nil))
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		core.ErrNotFound, core.ErrDuplicate, core.ErrInvalidRequest,
		core.ErrDimensionMismatch, core.ErrInvalidConfig, core.ErrInvalidInput,
		core.ErrEmbeddingFailed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
		}
	}
}
