// Package store defines the persistence contracts for schedule snapshots
// and recipient subscriptions.
package store

import (
	"context"
	"errors"

	"github.com/svitlobot/svitlo/core/model"
)

// ErrSubscriptionLimit is returned when a recipient already holds the
// maximum number of subscriptions.
var ErrSubscriptionLimit = errors.New("store: subscription limit reached")

// SnapshotStore persists one schedule snapshot per (source, group) pair.
type SnapshotStore interface {
	// Get returns the snapshot, or nil when the group was never observed.
	Get(ctx context.Context, sourceID, groupID string) (*model.Snapshot, error)
	// Upsert stores today/tomorrow and the content hash, rotating the
	// stored current texts into the previous slots first. Rotation happens
	// on every call, whether or not the hash changed.
	Upsert(ctx context.Context, sourceID, groupID, today, tomorrow, contentHash string) error
	// Hash returns the stored content hash, or "" when absent.
	Hash(ctx context.Context, sourceID, groupID string) (string, error)
}

// RecipientDirectory resolves who is subscribed to which groups. The poll
// loop only reads it; subscription management happens elsewhere.
type RecipientDirectory interface {
	// ListRecipients returns the recipient IDs subscribed to the group.
	ListRecipients(ctx context.Context, sourceID, groupID string) ([]string, error)
	// AllRecipients returns every known recipient ID.
	AllRecipients(ctx context.Context) ([]string, error)
}

// SubscriptionManager mutates recipient subscriptions.
type SubscriptionManager interface {
	// Subscribe adds one (recipient, source, group) binding. Adding an
	// existing binding is a no-op.
	Subscribe(ctx context.Context, recipientID, sourceID, groupID string) error
	// Unsubscribe removes the binding if present.
	Unsubscribe(ctx context.Context, recipientID, sourceID, groupID string) error
}
