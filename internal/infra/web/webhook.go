package web

import (
	"context"
	"io"
	"net/http"
	"time"

	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/infra/logging"
	"marketplace-subscription/internal/infra/metrics"
	"marketplace-subscription/internal/infra/payment"
)

const maxWebhookBody = 1 << 20 // 1 MiB, Stripe payloads are far smaller

// handleWebhook verifies, dedups and enqueues provider events. The handler
// itself never talks to the provider: all reconcile work runs on the pool so
// the response is fast and redeliveries stay cheap.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	event, err := s.verifier.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		metrics.IncWebhookEvent("unknown", "invalid")
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}

	ctx = logging.WithEventID(ctx, event.ID)
	l := logging.With(ctx, s.log)

	if event.Snapshot == nil && event.CheckoutSessionID == "" {
		metrics.IncWebhookEvent(event.Type, "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	first, err := s.deduper.MarkSeen(ctx, event.ID)
	if err != nil {
		l.Warn().Err(err).Msg("event dedup unavailable, processing anyway")
	}
	if !first {
		metrics.IncWebhookEvent(event.Type, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	task := s.webhookTask(event)
	if err := s.pool.Submit(task); err != nil {
		// Give the id back so the provider's redelivery is not dropped.
		_ = s.deduper.Forget(ctx, event.ID)
		l.Error().Err(err).Str("type", event.Type).Msg("webhook queue full")
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	metrics.IncWebhookEvent(event.Type, "applied")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) webhookTask(event *payment.WebhookEvent) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(logging.WithEventID(ctx, event.ID), 30*time.Second)
		defer cancel()

		if event.Snapshot != nil {
			_, _, err := s.reconciler.Apply(ctx, event.Snapshot, model.AuditActorWebhook)
			return err
		}

		// checkout.session.completed carries only the session; resolve it to
		// a subscription snapshot before applying.
		sess, err := s.gateway.GetCheckoutSession(ctx, event.CheckoutSessionID)
		if err != nil {
			return err
		}
		if sess.ExternalSubscriptionID == "" {
			return nil // not a subscription checkout
		}
		snap, err := s.gateway.GetSubscription(ctx, sess.ExternalSubscriptionID)
		if err != nil {
			return err
		}
		if snap.Metadata == nil {
			snap.Metadata = map[string]string{}
		}
		for k, v := range sess.Metadata {
			if snap.Metadata[k] == "" {
				snap.Metadata[k] = v
			}
		}
		// The event timestamp, not the fetch time, orders this write.
		snap.ObservedAt = event.Created
		_, _, err = s.reconciler.Apply(ctx, snap, model.AuditActorWebhook)
		return err
	}
}
