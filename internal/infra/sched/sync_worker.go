// File: internal/infra/sched/sync_worker.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/infra/metrics"
	"marketplace-subscription/internal/usecase"
)

// SyncWorker periodically re-reads the provider for subscriptions whose
// watermark has gone stale. This covers missed webhook deliveries and the
// deferred-cancel boundary: the provider flips the status at period end and
// nothing guarantees the webhook for it arrives.
type SyncWorker struct {
	reconciler usecase.ReconcileUseCase
	subs       repository.SubscriptionRepository
	interval   time.Duration
	staleAfter time.Duration
	log        zerolog.Logger
}

func NewSyncWorker(reconciler usecase.ReconcileUseCase, subs repository.SubscriptionRepository, interval, staleAfter time.Duration, log zerolog.Logger) *SyncWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &SyncWorker{
		reconciler: reconciler,
		subs:       subs,
		interval:   interval,
		staleAfter: staleAfter,
		log:        log.With().Str("component", "sync_worker").Logger(),
	}
}

func (w *SyncWorker) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *SyncWorker) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.subs.ListStaleEntitled(ctx, repository.NoTX, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("list stale subscriptions failed")
		return
	}

	// One sync per user, not per subscription row.
	seen := make(map[string]struct{}, len(stale))
	for _, s := range stale {
		if _, ok := seen[s.UserID]; ok {
			continue
		}
		seen[s.UserID] = struct{}{}
		if _, err := w.reconciler.SyncUser(ctx, s.UserID); err != nil {
			w.log.Warn().Err(err).Str("user_id", s.UserID).Msg("user sync failed")
		}
	}

	// Refresh the status gauge on the same cadence.
	if counts, err := w.subs.CountByStatus(ctx); err == nil {
		metrics.SetSubscriptionsTotal(counts)
	}
}
