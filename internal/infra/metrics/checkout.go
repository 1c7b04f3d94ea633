package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutSessionsTotal,
		checkoutConfirmTotal,
		pollerAttempts,
	)
}

var (
	checkoutSessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_sessions_total",
			Help: "Checkout sessions created, labeled by user type and plan tier.",
		},
		[]string{"user_type", "plan_tier"},
	)

	checkoutConfirmTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_confirm_total",
			Help: "Checkout success confirmations by result (created/exists/error).",
		},
		[]string{"result"},
	)

	pollerAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "convergence_poller_attempts",
			Help:    "Attempts taken until a purchased subscription became visible.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)
)

func IncCheckoutSession(userType, planTier string) {
	checkoutSessionsTotal.WithLabelValues(norm(userType), norm(planTier)).Inc()
}

func IncCheckoutConfirm(result string) {
	checkoutConfirmTotal.WithLabelValues(norm(result)).Inc()
}

func ObservePollerAttempts(n int) {
	pollerAttempts.Observe(float64(n))
}
