package adapter

import (
	"context"
	"time"
)

// CheckoutSessionParams describes a provider-hosted checkout to create.
// Metadata is attached to both the session and the resulting subscription so
// later steps can correlate without a second database lookup.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider's view of a hosted checkout flow.
type CheckoutSession struct {
	ID                     string
	URL                    string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Metadata               map[string]string
}

// SubscriptionSnapshot is a point-in-time copy of the provider's subscription
// object, the only input the reconciler accepts. ObservedAt orders snapshots:
// for webhook deliveries it is the provider event timestamp, for direct API
// reads the fetch time.
type SubscriptionSnapshot struct {
	ExternalSubscriptionID string
	ExternalCustomerID     string
	ProviderStatus         string
	CurrentPeriodStart     time.Time
	CurrentPeriodEnd       time.Time
	TrialEnd               *time.Time
	Amount                 int64 // minor units
	Currency               string
	PriceID                string
	Metadata               map[string]string
	ObservedAt             time.Time
}

// BillingGateway is the port to the external payment provider. The provider
// is the source of truth for subscription status; everything here is a single
// round trip with no local side effects.
type BillingGateway interface {
	Name() string
	CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, externalSubscriptionID string) (*SubscriptionSnapshot, error)
	ListActiveSubscriptions(ctx context.Context, customerID string) ([]*SubscriptionSnapshot, error)
	// CancelNow hard-cancels; CancelAtPeriodEnd flags the subscription to end
	// at the period boundary. Both must map a provider-side "already gone"
	// condition to domain.ErrProviderResourceMissing so callers can treat it
	// as converged.
	CancelNow(ctx context.Context, externalSubscriptionID string) error
	CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error
}
