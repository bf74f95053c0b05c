// Package signals records interaction events and rolls them into the
// per-node usage aggregates the decay engine consumes.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/braingraph/braingraph-go/pkg/storage"
)

// DefaultRetentionDays is how long signal log entries are kept when the
// caller does not specify a retention window.
const DefaultRetentionDays = 90

// Tracker records node accesses and maintains the signal log.
//
// Tracker is safe for concurrent use: the per-node atomicity of an access
// update is provided by the store (row-level locking or an equivalent
// serialized read-modify-write), so concurrent TrackAccess calls for the
// same node never lose increments.
type Tracker struct {
	store storage.Store
}

// NewTracker creates a tracker over the given store.
func NewTracker(store storage.Store) *Tracker {
	return &Tracker{store: store}
}

// TrackAccess records one access to a node:
//
//   - access_count += 1 and last_accessed = now
//   - the 7/30/90-day window counters += 1
//   - a view signal (value 1.0) is appended to the signal log
//   - last_accessed is touched on every embedding row of the node
//
// All of it happens in one store transaction.
func (t *Tracker) TrackAccess(ctx context.Context, nodeID string) error {
	if nodeID == "" {
		return fmt.Errorf("TrackAccess: empty node id")
	}
	return t.store.TrackAccess(ctx, nodeID, time.Now())
}

// CleanupOldSignals deletes signal log entries older than daysToKeep days
// (DefaultRetentionDays when daysToKeep <= 0) and returns how many were
// removed.
func (t *Tracker) CleanupOldSignals(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = DefaultRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	return t.store.DeleteSignalsBefore(ctx, cutoff)
}
