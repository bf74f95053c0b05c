// Package supersession maintains directed "replaces" relationships between
// nodes.
//
// Marking a node superseded updates both nodes' supersession sets, flags the
// old node obsolete, records a SUPERSEDES edge, and invalidates any stored
// decay score for both nodes so the next batch recomputes them with the new
// state. The store commits all of it as one transaction.
package supersession

import (
	"context"
	"fmt"
	"time"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// Manager performs supersession bookkeeping.
type Manager struct {
	store storage.Store
}

// NewManager creates a supersession manager over the given store.
func NewManager(store storage.Store) *Manager {
	return &Manager{store: store}
}

// MarkSuperseded records that newID replaces oldID:
//
//  1. newID is appended to oldID's superseded_by set and oldID is marked
//     obsolete with the given reason.
//  2. oldID is appended to newID's supersedes set.
//  3. A SUPERSEDES edge newID->oldID is created with {reason, marked_at}
//     properties; an existing edge makes this a no-op.
//  4. Stored decay scores for both nodes are deleted so stale scores never
//     survive a supersession event.
//
// The writes are one logical transaction: if either node is missing, the
// call fails with storage.ErrNotFound and nothing is changed. Calling twice
// with the same pair changes nothing after the first call.
func (m *Manager) MarkSuperseded(ctx context.Context, oldID, newID, reason string) error {
	if oldID == "" || newID == "" {
		return fmt.Errorf("MarkSuperseded: empty node id")
	}
	if oldID == newID {
		return fmt.Errorf("MarkSuperseded: a node cannot supersede itself")
	}
	return m.store.Supersede(ctx, oldID, newID, reason, time.Now())
}

// IsSuperseded reports whether the node has at least one replacement.
func (m *Manager) IsSuperseded(ctx context.Context, nodeID string) (bool, error) {
	node, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		return false, err
	}
	return len(node.Decay.Supersession.SupersededBy) > 0, nil
}

// Replacements returns the nodes that replace nodeID, in the order they were
// recorded.
func (m *Manager) Replacements(ctx context.Context, nodeID string) ([]string, error) {
	node, err := m.store.GetNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return node.Decay.Supersession.SupersededBy, nil
}
