// File: internal/usecase/reconcile_uc.go
package usecase

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// Metadata keys attached to provider sessions and subscriptions at checkout
// time and read back by the reconciler.
const (
	MetaUserID       = "user_id"
	MetaUserType     = "user_type"
	MetaPlanTier     = "plan_tier"
	MetaBillingCycle = "billing_cycle"
)

type ReconcileUseCase interface {
	// Apply folds one provider snapshot into the store. Safe to call from any
	// number of racing writers; the outcome reports what actually happened.
	Apply(ctx context.Context, snap *adapter.SubscriptionSnapshot, actor model.AuditActor) (*model.Subscription, repository.UpsertOutcome, error)
	// SyncUser pulls the user's active subscriptions from the provider and
	// applies the newest snapshot. Returns the resulting record, or
	// domain.ErrNotFound when the provider has nothing for this user.
	SyncUser(ctx context.Context, userID string) (*model.Subscription, error)
}

type reconcileUC struct {
	subs    repository.SubscriptionRepository
	audit   repository.AuditLogRepository
	txm     repository.TransactionManager
	gateway adapter.BillingGateway
}

func NewReconcileUseCase(subs repository.SubscriptionRepository, audit repository.AuditLogRepository, txm repository.TransactionManager, gateway adapter.BillingGateway) *reconcileUC {
	return &reconcileUC{subs: subs, audit: audit, txm: txm, gateway: gateway}
}

func (u *reconcileUC) Apply(ctx context.Context, snap *adapter.SubscriptionSnapshot, actor model.AuditActor) (*model.Subscription, repository.UpsertOutcome, error) {
	if err := validateSnapshot(snap); err != nil {
		metrics.IncReconcile("error", string(actor))
		return nil, "", err
	}

	cand, err := u.candidateFromSnapshot(ctx, snap)
	if err != nil {
		metrics.IncReconcile("error", string(actor))
		return nil, "", err
	}

	var (
		stored  *model.Subscription
		outcome repository.UpsertOutcome
	)
	err = u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		before, ferr := u.subs.FindByExternalID(ctx, tx, snap.ExternalSubscriptionID)
		if ferr != nil && !errors.Is(ferr, domain.ErrNotFound) {
			return ferr
		}

		stored, outcome, ferr = u.subs.Upsert(ctx, tx, cand)
		if ferr != nil {
			return ferr
		}
		return u.auditOutcome(ctx, tx, actor, before, stored, outcome)
	})
	if err != nil {
		metrics.IncReconcile("error", string(actor))
		return nil, "", err
	}

	metrics.IncReconcile(string(outcome), string(actor))
	return stored, outcome, nil
}

func (u *reconcileUC) SyncUser(ctx context.Context, userID string) (*model.Subscription, error) {
	customerID, err := u.subs.LatestCustomerID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}

	snaps, err := u.gateway.ListActiveSubscriptions(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, domain.ErrNotFound
	}

	// Newest first; apply only the freshest view of each user.
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CurrentPeriodStart.After(snaps[j].CurrentPeriodStart)
	})
	snap := snaps[0]
	if snap.Metadata[MetaUserID] == "" {
		// Older records may predate metadata stamping; the store mapping
		// from the customer id is authoritative in that case.
		if snap.Metadata == nil {
			snap.Metadata = map[string]string{}
		}
		snap.Metadata[MetaUserID] = userID
	}

	sub, _, err := u.Apply(ctx, snap, model.AuditActorSync)
	return sub, err
}

func validateSnapshot(snap *adapter.SubscriptionSnapshot) error {
	if snap == nil || snap.ExternalSubscriptionID == "" || snap.ObservedAt.IsZero() {
		return domain.ErrProviderData
	}
	if snap.CurrentPeriodStart.IsZero() || snap.CurrentPeriodEnd.IsZero() {
		return domain.ErrProviderData
	}
	return nil
}

// candidateFromSnapshot builds the row the upsert will attempt. The owning
// user comes from snapshot metadata; when absent the row must already exist
// locally, otherwise the snapshot is unattributable and is rejected untouched.
func (u *reconcileUC) candidateFromSnapshot(ctx context.Context, snap *adapter.SubscriptionSnapshot) (*model.Subscription, error) {
	userID := snap.Metadata[MetaUserID]
	if userID == "" {
		existing, err := u.subs.FindByExternalID(ctx, repository.NoTX, snap.ExternalSubscriptionID)
		if err != nil {
			return nil, domain.ErrProviderData
		}
		userID = existing.UserID
	}

	status := model.MapProviderStatus(snap.ProviderStatus)
	s := &model.Subscription{
		ID:                     uuid.NewString(),
		UserID:                 userID,
		PlanID:                 snap.PriceID,
		PlanName:               snap.Metadata[MetaPlanTier],
		PlanType:               snap.Metadata[MetaUserType],
		BillingPeriod:          snap.Metadata[MetaBillingCycle],
		Amount:                 snap.Amount,
		Currency:               snap.Currency,
		Status:                 status,
		StartDate:              snap.CurrentPeriodStart,
		EndDate:                snap.CurrentPeriodEnd,
		TrialEndDate:           snap.TrialEnd,
		ExternalSubscriptionID: snap.ExternalSubscriptionID,
		ExternalCustomerID:     snap.ExternalCustomerID,
		Metadata:               snap.Metadata,
		ProviderUpdatedAt:      snap.ObservedAt,
	}
	if status == model.SubscriptionStatusCancelled {
		observed := snap.ObservedAt
		s.CancelledAt = &observed
	}
	return s, nil
}

func (u *reconcileUC) auditOutcome(ctx context.Context, tx repository.Tx, actor model.AuditActor, before, stored *model.Subscription, outcome repository.UpsertOutcome) error {
	var entry *model.AuditEntry
	switch outcome {
	case repository.UpsertCreated:
		entry = newAuditEntry(stored, actor, model.AuditActionCreated, "", stored.Status)
	case repository.UpsertUpdated:
		action := model.AuditActionSynced
		beforeStatus := stored.Status
		if before != nil {
			beforeStatus = before.Status
		}
		if beforeStatus != stored.Status {
			action = model.AuditActionStatusChanged
			if stored.Status == model.SubscriptionStatusCancelled {
				action = model.AuditActionCancelled
			}
		}
		entry = newAuditEntry(stored, actor, action, beforeStatus, stored.Status)
	default:
		// Unchanged: nothing happened, nothing to record.
		return nil
	}
	return u.audit.Append(ctx, tx, entry)
}

func newAuditEntry(sub *model.Subscription, actor model.AuditActor, action model.AuditAction, before, after model.SubscriptionStatus) *model.AuditEntry {
	return &model.AuditEntry{
		ID:             ulid.Make().String(),
		SubscriptionID: sub.ID,
		Action:         action,
		Actor:          actor,
		BeforeStatus:   before,
		AfterStatus:    after,
		Timestamp:      sub.ProviderUpdatedAt,
		Details: map[string]string{
			"external_subscription_id": sub.ExternalSubscriptionID,
		},
	}
}
