// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-subscription/internal/config"
	pg "marketplace-subscription/internal/infra/db/postgres"
	"marketplace-subscription/internal/infra/logging"
	"marketplace-subscription/internal/infra/metrics"
	"marketplace-subscription/internal/infra/payment"
	red "marketplace-subscription/internal/infra/redis"
	"marketplace-subscription/internal/infra/sched"
	"marketplace-subscription/internal/infra/web"
	"marketplace-subscription/internal/infra/worker"
	"marketplace-subscription/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	deduper := red.NewEventDeduper(redisClient)

	// ---- Repositories ----
	subRepo := pg.NewSubscriptionRepo(pool)
	auditRepo := pg.NewAuditLogRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Provider ----
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey)
	verifier := payment.NewWebhookVerifier(cfg.Stripe.WebhookSecret)

	// ---- Use cases ----
	reconciler := usecase.NewReconcileUseCase(subRepo, auditRepo, txManager, gateway)
	checkoutUC := usecase.NewCheckoutUseCase(subRepo, gateway, reconciler)
	subUC := usecase.NewSubscriptionUseCase(subRepo, auditRepo, txManager, gateway)
	poller := usecase.NewVisibilityPoller(subRepo, reconciler, usecase.RealClock(), cfg.Poller.MaxAttempts, cfg.Poller.InitialDelay)

	// ---- Webhook worker pool ----
	wpool := worker.NewPool(cfg.Sync.Workers, *logger)
	wpool.Start(ctx)
	defer wpool.Stop()

	// ---- Periodic provider sync ----
	syncWorker := sched.NewSyncWorker(reconciler, subRepo, cfg.Sync.Interval, cfg.Sync.StaleAfter, *logger)
	go syncWorker.Start(ctx)

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Auth.HMACSecret)
	srv := web.NewServer(checkoutUC, subUC, reconciler, poller, gateway, verifier, deduper, rateLimiter, wpool, auth, cfg.RateLimit, logger)
	server := srv.Listen(fmt.Sprintf(":%d", cfg.Server.Port), cfg.Server)
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	cancel()
}
