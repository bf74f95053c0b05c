// Package core provides the main brain graph client: node and edge
// management, decay scoring, signal tracking, supersession, and hybrid
// search behind one facade.
package core

import (
	"errors"
	"fmt"

	"github.com/braingraph/braingraph-go/pkg/search"
	"github.com/braingraph/braingraph-go/pkg/storage"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a referenced node, chunk, or model was not
	// found. It matches the storage sentinel so errors.Is works across
	// layers.
	ErrNotFound = storage.ErrNotFound

	// ErrDuplicate indicates a uniqueness violation such as an edge that
	// already exists.
	ErrDuplicate = storage.ErrDuplicate

	// ErrInvalidRequest indicates a malformed search request.
	ErrInvalidRequest = search.ErrInvalidRequest

	// ErrDimensionMismatch indicates an embedding vector whose dimension
	// disagrees with its registered model.
	ErrDimensionMismatch = storage.ErrDimensionMismatch

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingFailed indicates that embedding generation failed.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// GraphError wraps errors with operation context.
//
// It provides additional context about which operation failed,
// making error messages more informative for debugging.
//
// Example:
//
//	err := &GraphError{
//	    Op:  "CreateNode",
//	    Err: ErrDuplicate,
//	}
//	// Error() returns: "braingraph: CreateNode: duplicate record"
type GraphError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "braingraph: <Op>: <Err>"
func (e *GraphError) Error() string {
	return fmt.Sprintf("braingraph: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with GraphError.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// NewGraphError creates a new GraphError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewGraphError("CreateNode", err)
//	}
func NewGraphError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &GraphError{
		Op:  op,
		Err: err,
	}
}
