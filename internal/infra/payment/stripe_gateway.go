package payment

import (
	"context"
	"errors"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	session "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/ports/adapter"
)

// Ensure StripeGateway implements adapter.BillingGateway
var _ adapter.BillingGateway = (*StripeGateway)(nil)

// StripeGateway talks to Stripe. Every method is a single API round trip;
// local state is never touched here.
type StripeGateway struct{}

// NewStripeGateway sets the package-level API key and returns the gateway.
func NewStripeGateway(apiKey string) *StripeGateway {
	stripe.Key = apiKey
	return &StripeGateway{}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Params:   stripe.Params{Context: ctx},
		Email:    stripe.String(email),
		Metadata: metadata,
	}
	c, err := customer.New(params)
	if err != nil {
		return "", mapStripeErr(err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p adapter.CheckoutSessionParams) (*adapter.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		Metadata:   p.Metadata,
		// Copy the metadata onto the subscription object itself so webhook
		// payloads carry it without an extra session lookup.
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		},
	}
	s, err := session.New(params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return checkoutFromSession(s), nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("subscription")
	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return checkoutFromSession(s), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, externalSubscriptionID string) (*adapter.SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := subscription.Get(externalSubscriptionID, params)
	if err != nil {
		return nil, mapStripeErr(err)
	}
	return SnapshotFromSubscription(sub, time.Now().UTC())
}

func (g *StripeGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*adapter.SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx

	var out []*adapter.SubscriptionSnapshot
	observed := time.Now().UTC()
	iter := subscription.List(params)
	for iter.Next() {
		snap, err := SnapshotFromSubscription(iter.Subscription(), observed)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeErr(err)
	}
	return out, nil
}

func (g *StripeGateway) CancelNow(ctx context.Context, externalSubscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}}
	if _, err := subscription.Cancel(externalSubscriptionID, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

func (g *StripeGateway) CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error {
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	if _, err := subscription.Update(externalSubscriptionID, params); err != nil {
		return mapStripeErr(err)
	}
	return nil
}

// SnapshotFromSubscription flattens a Stripe subscription object into the
// reconciler's snapshot form. The billing period and price live on the first
// subscription item; a subscription without items is a malformed payload.
func SnapshotFromSubscription(sub *stripe.Subscription, observedAt time.Time) (*adapter.SubscriptionSnapshot, error) {
	if sub == nil || sub.ID == "" {
		return nil, domain.ErrProviderData
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, domain.ErrProviderData
	}
	item := sub.Items.Data[0]
	if item.Price == nil {
		return nil, domain.ErrProviderData
	}

	snap := &adapter.SubscriptionSnapshot{
		ExternalSubscriptionID: sub.ID,
		ProviderStatus:         string(sub.Status),
		CurrentPeriodStart:     time.Unix(item.CurrentPeriodStart, 0).UTC(),
		CurrentPeriodEnd:       time.Unix(item.CurrentPeriodEnd, 0).UTC(),
		Amount:                 item.Price.UnitAmount,
		Currency:               string(item.Price.Currency),
		PriceID:                item.Price.ID,
		Metadata:               sub.Metadata,
		ObservedAt:             observedAt,
	}
	if sub.Customer != nil {
		snap.ExternalCustomerID = sub.Customer.ID
	}
	if sub.TrialEnd != 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		snap.TrialEnd = &t
	}
	return snap, nil
}

func checkoutFromSession(s *stripe.CheckoutSession) *adapter.CheckoutSession {
	out := &adapter.CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Metadata: s.Metadata,
	}
	if s.Subscription != nil {
		out.ExternalSubscriptionID = s.Subscription.ID
	}
	if s.Customer != nil {
		out.ExternalCustomerID = s.Customer.ID
	}
	return out
}

// mapStripeErr translates Stripe API errors into domain sentinels.
// resource_missing means the object is already gone on the provider side,
// which most callers treat as converged rather than failed.
func mapStripeErr(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		if sErr.Code == stripe.ErrorCodeResourceMissing {
			return domain.ErrProviderResourceMissing
		}
		if sErr.HTTPStatusCode >= 500 {
			return domain.ErrProviderUnavailable
		}
		return domain.ErrOperationFailed
	}
	return domain.ErrProviderUnavailable
}
