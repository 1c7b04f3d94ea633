package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marketplace-subscription/internal/config"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/infra/payment"
	"marketplace-subscription/internal/infra/redis"
	"marketplace-subscription/internal/infra/worker"
	"marketplace-subscription/internal/usecase"
)

// Server wires the HTTP surface: the authenticated subscription API, the
// provider webhook, health and metrics.
type Server struct {
	checkoutUC usecase.CheckoutUseCase
	subUC      usecase.SubscriptionUseCase
	reconciler usecase.ReconcileUseCase
	poller     *usecase.VisibilityPoller
	gateway    adapter.BillingGateway

	verifier *payment.WebhookVerifier
	deduper  *redis.EventDeduper
	limiter  *redis.RateLimiter
	pool     *worker.Pool

	auth      *AuthManager
	rateLimit config.RateLimitConfig
	log       *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	subUC usecase.SubscriptionUseCase,
	reconciler usecase.ReconcileUseCase,
	poller *usecase.VisibilityPoller,
	gateway adapter.BillingGateway,
	verifier *payment.WebhookVerifier,
	deduper *redis.EventDeduper,
	limiter *redis.RateLimiter,
	pool *worker.Pool,
	auth *AuthManager,
	rateLimit config.RateLimitConfig,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		checkoutUC: checkoutUC,
		subUC:      subUC,
		reconciler: reconciler,
		poller:     poller,
		gateway:    gateway,
		verifier:   verifier,
		deduper:    deduper,
		limiter:    limiter,
		pool:       pool,
		auth:       auth,
		rateLimit:  rateLimit,
		log:        logger,
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/webhook/stripe", s.handleWebhook)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/checkout-sessions", s.handleCreateCheckoutSession)
		r.Post("/checkout-sessions/confirm", s.handleConfirmCheckout)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions/sync", s.handleSyncSubscriptions)
		r.Post("/subscriptions/{id}/cancel", s.handleCancelSubscription)
		r.Get("/subscriptions/{id}/history", s.handleSubscriptionHistory)
	})

	return r
}

// Listen builds the http.Server with the configured timeouts.
func (s *Server) Listen(addr string, cfg config.ServerConfig) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  time.Minute,
	}
}
