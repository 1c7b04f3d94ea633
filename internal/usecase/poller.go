// File: internal/usecase/poller.go
package usecase

import (
	"context"
	"time"

	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/infra/metrics"
)

// Clock abstracts time for the poller so tests can drive it without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

// VisibilityPoller waits for a freshly purchased subscription to become
// visible in the store. Webhook delivery lag means the row may not exist the
// instant the user lands on the success page; the poller bridges that gap
// with a bounded number of reads and never loops forever.
type VisibilityPoller struct {
	subs         repository.SubscriptionRepository
	reconciler   ReconcileUseCase
	clock        Clock
	maxAttempts  int
	initialDelay time.Duration
}

func NewVisibilityPoller(subs repository.SubscriptionRepository, reconciler ReconcileUseCase, clock Clock, maxAttempts int, initialDelay time.Duration) *VisibilityPoller {
	if clock == nil {
		clock = realClock{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}
	return &VisibilityPoller{
		subs:         subs,
		reconciler:   reconciler,
		clock:        clock,
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
	}
}

// Await returns true once an entitled record for the user is readable, false
// on context cancellation or attempt exhaustion. Exhaustion is an expected
// outcome, not an error: the webhook may simply still be in flight.
func (p *VisibilityPoller) Await(ctx context.Context, userID string) bool {
	// One best-effort pull from the provider before settling into reads.
	_, _ = p.reconciler.SyncUser(ctx, userID)

	delay := p.initialDelay
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if sub, err := p.subs.FindEntitledByUser(ctx, repository.NoTX, userID); err == nil && sub != nil {
			metrics.ObservePollerAttempts(attempt)
			return true
		}
		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-p.clock.After(delay):
			delay *= 2
		}
	}
	metrics.ObservePollerAttempts(p.maxAttempts)
	return false
}
