// File: internal/usecase/checkout_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/infra/metrics"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutInput is the validated request to start a provider-hosted checkout.
type CheckoutInput struct {
	UserID     string
	Email      string
	Plan       model.PlanSelection
	SuccessURL string
	CancelURL  string
}

// CheckoutResult carries what the client needs to redirect to the provider.
type CheckoutResult struct {
	SessionID   string
	RedirectURL string
}

type CheckoutUseCase interface {
	// Initiate validates the plan selection and creates a provider checkout
	// session. Creates a provider customer lazily when the user has none.
	Initiate(ctx context.Context, callerUserID string, in CheckoutInput) (*CheckoutResult, error)
	// ConfirmSuccess is the post-redirect success handler. It retrieves the
	// session from the provider and delegates to the reconciler; repeated
	// calls for the same session converge on the same stored record.
	ConfirmSuccess(ctx context.Context, callerUserID, sessionID string) (*model.Subscription, error)
}

type checkoutUC struct {
	subs       repository.SubscriptionRepository
	gateway    adapter.BillingGateway
	reconciler ReconcileUseCase
}

func NewCheckoutUseCase(subs repository.SubscriptionRepository, gateway adapter.BillingGateway, reconciler ReconcileUseCase) *checkoutUC {
	return &checkoutUC{subs: subs, gateway: gateway, reconciler: reconciler}
}

func (u *checkoutUC) Initiate(ctx context.Context, callerUserID string, in CheckoutInput) (*CheckoutResult, error) {
	if callerUserID != in.UserID {
		return nil, domain.ErrNotOwner
	}
	if _, err := uuid.Parse(in.UserID); err != nil {
		return nil, domain.ErrInvalidArgument
	}
	if err := in.Plan.Validate(); err != nil {
		return nil, err
	}
	if in.SuccessURL == "" || in.CancelURL == "" {
		return nil, domain.ErrInvalidArgument
	}

	meta := map[string]string{
		MetaUserID:       in.UserID,
		MetaUserType:     string(in.Plan.UserType),
		MetaPlanTier:     string(in.Plan.PlanTier),
		MetaBillingCycle: string(in.Plan.BillingCycle),
	}

	customerID, err := u.subs.LatestCustomerID(ctx, repository.NoTX, in.UserID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		customerID, err = u.gateway.CreateCustomer(ctx, in.Email, map[string]string{MetaUserID: in.UserID})
		if err != nil {
			return nil, err
		}
	}

	sess, err := u.gateway.CreateCheckoutSession(ctx, adapter.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    in.Plan.PriceID,
		SuccessURL: in.SuccessURL,
		CancelURL:  in.CancelURL,
		Metadata:   meta,
	})
	if err != nil {
		return nil, err
	}

	metrics.IncCheckoutSession(string(in.Plan.UserType), string(in.Plan.PlanTier))
	return &CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

func (u *checkoutUC) ConfirmSuccess(ctx context.Context, callerUserID, sessionID string) (*model.Subscription, error) {
	if sessionID == "" {
		return nil, domain.ErrInvalidArgument
	}

	sess, err := u.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		metrics.IncCheckoutConfirm("error")
		return nil, err
	}
	if sess.Metadata[MetaUserID] != callerUserID {
		return nil, domain.ErrNotOwner
	}
	if sess.ExternalSubscriptionID == "" {
		// Session exists but no subscription was attached yet; the checkout
		// has not completed on the provider side.
		metrics.IncCheckoutConfirm("error")
		return nil, domain.ErrProviderData
	}

	snap, err := u.gateway.GetSubscription(ctx, sess.ExternalSubscriptionID)
	if err != nil {
		metrics.IncCheckoutConfirm("error")
		return nil, err
	}
	// Session metadata wins over subscription metadata for attribution; it
	// was stamped at Initiate time and passed the ownership check above.
	if snap.Metadata == nil {
		snap.Metadata = map[string]string{}
	}
	for k, v := range sess.Metadata {
		if snap.Metadata[k] == "" {
			snap.Metadata[k] = v
		}
	}

	sub, outcome, err := u.reconciler.Apply(ctx, snap, model.AuditActorCheckout)
	if err != nil {
		metrics.IncCheckoutConfirm("error")
		return nil, err
	}
	if outcome == repository.UpsertCreated {
		metrics.IncCheckoutConfirm("created")
	} else {
		metrics.IncCheckoutConfirm("exists")
	}
	return sub, nil
}
