//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"marketplace-subscription/internal/domain/model"
)

func TestAuditLogRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	subRepo := NewSubscriptionRepo(testPool)
	repo := NewAuditLogRepo(testPool)
	t0 := time.Now().UTC().Truncate(time.Second)

	seedSub := func(t *testing.T) *model.Subscription {
		cleanup(t)
		sub := newTestSub(uuid.NewString(), "sub_ext_audit", model.SubscriptionStatusTrial, t0)
		stored, _, err := subRepo.Upsert(ctx, nil, sub)
		if err != nil {
			t.Fatalf("failed to seed subscription: %v", err)
		}
		return stored
	}

	entry := func(subID string, action model.AuditAction, ts time.Time) *model.AuditEntry {
		return &model.AuditEntry{
			ID:             ulid.Make().String(),
			SubscriptionID: subID,
			Action:         action,
			Actor:          model.AuditActorWebhook,
			BeforeStatus:   model.SubscriptionStatusTrial,
			AfterStatus:    model.SubscriptionStatusActive,
			Timestamp:      ts,
			Details:        map[string]string{"external_subscription_id": "sub_ext_audit"},
		}
	}

	t.Run("should append and list in timestamp order", func(t *testing.T) {
		sub := seedSub(t)

		second := entry(sub.ID, model.AuditActionStatusChanged, t0.Add(time.Minute))
		first := entry(sub.ID, model.AuditActionCreated, t0)
		if err := repo.Append(ctx, nil, second); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if err := repo.Append(ctx, nil, first); err != nil {
			t.Fatalf("Append failed: %v", err)
		}

		entries, err := repo.ListBySubscription(ctx, nil, sub.ID, 0)
		if err != nil {
			t.Fatalf("ListBySubscription failed: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("got %d entries, want 2", len(entries))
		}
		if entries[0].Action != model.AuditActionCreated || entries[1].Action != model.AuditActionStatusChanged {
			t.Errorf("entries out of order: %q then %q", entries[0].Action, entries[1].Action)
		}
		if entries[0].Details["external_subscription_id"] != "sub_ext_audit" {
			t.Errorf("details not round-tripped: %v", entries[0].Details)
		}
	})

	t.Run("should honor the limit", func(t *testing.T) {
		sub := seedSub(t)
		for i := 0; i < 5; i++ {
			if err := repo.Append(ctx, nil, entry(sub.ID, model.AuditActionSynced, t0.Add(time.Duration(i)*time.Second))); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
		}
		entries, err := repo.ListBySubscription(ctx, nil, sub.ID, 3)
		if err != nil {
			t.Fatalf("ListBySubscription failed: %v", err)
		}
		if len(entries) != 3 {
			t.Errorf("got %d entries, want 3", len(entries))
		}
	})

	t.Run("should return nothing for an unknown subscription", func(t *testing.T) {
		seedSub(t)
		entries, err := repo.ListBySubscription(ctx, nil, uuid.NewString(), 0)
		if err != nil {
			t.Fatalf("ListBySubscription failed: %v", err)
		}
		if len(entries) != 0 {
			t.Errorf("got %d entries, want 0", len(entries))
		}
	})
}
