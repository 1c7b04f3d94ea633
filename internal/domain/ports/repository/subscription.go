package repository

import (
	"context"
	"time"

	"marketplace-subscription/internal/domain/model"
)

// UpsertOutcome is the tagged result of an idempotent upsert. Conflicts are
// data, not exceptions: racing writers both get an answer they can act on.
type UpsertOutcome string

const (
	// UpsertCreated means a new row was inserted.
	UpsertCreated UpsertOutcome = "created"
	// UpsertUpdated means an existing row was refreshed from a newer snapshot.
	UpsertUpdated UpsertOutcome = "updated"
	// UpsertUnchanged means a row for the external id already exists and the
	// incoming snapshot was not newer (or the row is terminal); the stored
	// record is returned untouched.
	UpsertUnchanged UpsertOutcome = "unchanged"
)

// SubscriptionRepository is the port for subscription records.
//
// Upsert is the only write path that may create a row. It relies on the
// storage-level uniqueness of external_subscription_id: insert, and on
// conflict fall back to a watermark-guarded update. Never check-then-insert:
// the checkout success handler and the provider webhook race on creation
// from separate processes.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, tx Tx, sub *model.Subscription) (*model.Subscription, UpsertOutcome, error)
	Update(ctx context.Context, tx Tx, sub *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.Subscription, error)
	FindEntitledByUser(ctx context.Context, tx Tx, userID string) (*model.Subscription, error)
	FindAllByUser(ctx context.Context, tx Tx, userID string) ([]*model.Subscription, error)
	// LatestCustomerID returns the most recent non-empty external customer id
	// recorded for the user, or domain.ErrNotFound.
	LatestCustomerID(ctx context.Context, tx Tx, userID string) (string, error)
	// CountByStatus supports the status gauge.
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
	// ListStaleEntitled returns entitled records whose watermark is older than
	// the cutoff, for the periodic provider sync worker.
	ListStaleEntitled(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Subscription, error)
}
