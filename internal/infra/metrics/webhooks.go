package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
	)
}

var webhookEventsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "provider_webhook_events_total",
		Help: "Provider webhook events by type and disposition (applied/duplicate/ignored/invalid).",
	},
	[]string{"type", "disposition"},
)

func IncWebhookEvent(eventType, disposition string) {
	webhookEventsTotal.WithLabelValues(norm(eventType), norm(disposition)).Inc()
}
