package payment

import (
	"encoding/json"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/ports/adapter"
)

// WebhookEvent is a verified, decoded provider notification. Exactly one of
// Snapshot or CheckoutSessionID is set for events the engine acts on; both are
// empty for event types it acknowledges without processing.
type WebhookEvent struct {
	ID                string
	Type              string
	Created           time.Time
	Snapshot          *adapter.SubscriptionSnapshot
	CheckoutSessionID string
}

// WebhookVerifier checks webhook signatures and decodes the payload.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse verifies the signature and decodes the event. The event timestamp
// becomes the snapshot's ObservedAt so deliveries order by provider time, not
// by local arrival time.
func (v *WebhookVerifier) Parse(payload []byte, sigHeader string) (*WebhookEvent, error) {
	// Events keep flowing across provider API version bumps; the decoder only
	// touches fields that are stable across versions.
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	out := &WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, domain.ErrProviderData
		}
		snap, err := SnapshotFromSubscription(&sub, out.Created)
		if err != nil {
			return nil, err
		}
		out.Snapshot = snap

	case "checkout.session.completed":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, domain.ErrProviderData
		}
		if s.ID == "" {
			return nil, domain.ErrProviderData
		}
		out.CheckoutSessionID = s.ID
	}

	return out, nil
}
