package metrics

import (
	"marketplace-subscription/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsTotal,
		reconcileTotal,
		cancellationsTotal,
	)
}

var (
	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscriptions by status.",
		},
		[]string{"status"}, // 'trial', 'active', 'past_due', 'cancelled'
	)

	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_reconcile_total",
			Help: "Reconcile outcomes (created/updated/unchanged/stale/error).",
		},
		[]string{"outcome", "actor"},
	)

	cancellationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_cancellations_total",
			Help: "Cancellation requests by mode (immediate/period_end).",
		},
		[]string{"mode"},
	)
)

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	statuses := []model.SubscriptionStatus{
		model.SubscriptionStatusTrial,
		model.SubscriptionStatusActive,
		model.SubscriptionStatusPastDue,
		model.SubscriptionStatusCancelled,
	}
	for _, status := range statuses {
		if count, ok := counts[status]; ok {
			subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
		}
	}
}

func IncReconcile(outcome, actor string) {
	reconcileTotal.WithLabelValues(norm(outcome), norm(actor)).Inc()
}

func IncCancellation(immediate bool) {
	mode := "period_end"
	if immediate {
		mode = "immediate"
	}
	cancellationsTotal.WithLabelValues(mode).Inc()
}
