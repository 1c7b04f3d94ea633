// File: internal/usecase/subscription_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	// Cancel ends a subscription with the provider and mirrors the result
	// locally. immediate hard-cancels; otherwise the subscription runs to the
	// period boundary. Idempotent: cancelling a cancelled subscription is a
	// no-op success.
	Cancel(ctx context.Context, callerUserID, subscriptionID string, immediate bool) (*model.Subscription, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Subscription, error)
	Entitled(ctx context.Context, userID string) (*model.Subscription, error)
	History(ctx context.Context, callerUserID, subscriptionID string, limit int) ([]*model.AuditEntry, error)
}

type subscriptionUC struct {
	subs    repository.SubscriptionRepository
	audit   repository.AuditLogRepository
	txm     repository.TransactionManager
	gateway adapter.BillingGateway
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, audit repository.AuditLogRepository, txm repository.TransactionManager, gateway adapter.BillingGateway) *subscriptionUC {
	return &subscriptionUC{subs: subs, audit: audit, txm: txm, gateway: gateway}
}

func (u *subscriptionUC) Cancel(ctx context.Context, callerUserID, subscriptionID string, immediate bool) (*model.Subscription, error) {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != callerUserID {
		return nil, domain.ErrNotOwner
	}
	if sub.Status == model.SubscriptionStatusCancelled {
		return sub, nil
	}
	if !immediate && sub.CancelAtPeriodEnd() {
		return sub, nil
	}

	// Provider first. A subscription the provider no longer knows about is
	// already cancelled for our purposes.
	if immediate {
		err = u.gateway.CancelNow(ctx, sub.ExternalSubscriptionID)
	} else {
		err = u.gateway.CancelAtPeriodEnd(ctx, sub.ExternalSubscriptionID)
	}
	if err != nil && !errors.Is(err, domain.ErrProviderResourceMissing) {
		return nil, err
	}

	var out *model.Subscription
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		cur, ferr := u.subs.FindByID(ctx, tx, subscriptionID)
		if ferr != nil {
			return ferr
		}
		if cur.Status == model.SubscriptionStatusCancelled {
			out = cur
			return nil
		}

		now := time.Now().UTC()
		before := cur.Status
		cur.CancelledAt = &now
		action := model.AuditActionCancelRequested
		if immediate {
			cur.Status = model.SubscriptionStatusCancelled
			action = model.AuditActionCancelled
		} else {
			if cur.Metadata == nil {
				cur.Metadata = map[string]string{}
			}
			cur.Metadata[model.MetadataCancelAtPeriodEnd] = "true"
		}
		if ferr := u.subs.Update(ctx, tx, cur); ferr != nil {
			return ferr
		}

		entry := &model.AuditEntry{
			ID:             ulid.Make().String(),
			SubscriptionID: cur.ID,
			Action:         action,
			Actor:          model.AuditActorUser,
			BeforeStatus:   before,
			AfterStatus:    cur.Status,
			Timestamp:      now,
			Details: map[string]string{
				"external_subscription_id": cur.ExternalSubscriptionID,
			},
		}
		if immediate {
			entry.Details["mode"] = "immediate"
		} else {
			entry.Details["mode"] = "period_end"
		}
		if ferr := u.audit.Append(ctx, tx, entry); ferr != nil {
			return ferr
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCancellation(immediate)
	return out, nil
}

func (u *subscriptionUC) ListForUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	return u.subs.FindAllByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) Entitled(ctx context.Context, userID string) (*model.Subscription, error) {
	return u.subs.FindEntitledByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) History(ctx context.Context, callerUserID, subscriptionID string, limit int) ([]*model.AuditEntry, error) {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != callerUserID {
		return nil, domain.ErrNotOwner
	}
	return u.audit.ListBySubscription(ctx, repository.NoTX, subscriptionID, limit)
}
