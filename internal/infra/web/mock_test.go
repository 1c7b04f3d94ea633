//go:build !integration

package web

import (
	"context"
	"strings"
	"sync"
	"time"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/domain/ports/repository"
	"marketplace-subscription/internal/usecase"
)

// --- Mock use cases (ports of the HTTP layer) ---

type mockCheckoutUC struct {
	InitiateFunc       func(ctx context.Context, callerUserID string, in usecase.CheckoutInput) (*usecase.CheckoutResult, error)
	ConfirmSuccessFunc func(ctx context.Context, callerUserID, sessionID string) (*model.Subscription, error)
}

func (m *mockCheckoutUC) Initiate(ctx context.Context, callerUserID string, in usecase.CheckoutInput) (*usecase.CheckoutResult, error) {
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, callerUserID, in)
	}
	return &usecase.CheckoutResult{SessionID: "cs_test", RedirectURL: "https://pay.example/cs_test"}, nil
}

func (m *mockCheckoutUC) ConfirmSuccess(ctx context.Context, callerUserID, sessionID string) (*model.Subscription, error) {
	if m.ConfirmSuccessFunc != nil {
		return m.ConfirmSuccessFunc(ctx, callerUserID, sessionID)
	}
	return nil, domain.ErrNotFound
}

type mockSubUC struct {
	CancelFunc      func(ctx context.Context, callerUserID, subscriptionID string, immediate bool) (*model.Subscription, error)
	ListForUserFunc func(ctx context.Context, userID string) ([]*model.Subscription, error)
	EntitledFunc    func(ctx context.Context, userID string) (*model.Subscription, error)
	HistoryFunc     func(ctx context.Context, callerUserID, subscriptionID string, limit int) ([]*model.AuditEntry, error)
}

func (m *mockSubUC) Cancel(ctx context.Context, callerUserID, subscriptionID string, immediate bool) (*model.Subscription, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, callerUserID, subscriptionID, immediate)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) ListForUser(ctx context.Context, userID string) ([]*model.Subscription, error) {
	if m.ListForUserFunc != nil {
		return m.ListForUserFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockSubUC) Entitled(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.EntitledFunc != nil {
		return m.EntitledFunc(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSubUC) History(ctx context.Context, callerUserID, subscriptionID string, limit int) ([]*model.AuditEntry, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, callerUserID, subscriptionID, limit)
	}
	return nil, nil
}

type mockReconciler struct {
	mu      sync.Mutex
	applied []*adapter.SubscriptionSnapshot

	ApplyFunc    func(ctx context.Context, snap *adapter.SubscriptionSnapshot, actor model.AuditActor) (*model.Subscription, repository.UpsertOutcome, error)
	SyncUserFunc func(ctx context.Context, userID string) (*model.Subscription, error)
}

func (m *mockReconciler) Apply(ctx context.Context, snap *adapter.SubscriptionSnapshot, actor model.AuditActor) (*model.Subscription, repository.UpsertOutcome, error) {
	m.mu.Lock()
	m.applied = append(m.applied, snap)
	m.mu.Unlock()
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, snap, actor)
	}
	return &model.Subscription{ID: "sub-1", ExternalSubscriptionID: snap.ExternalSubscriptionID}, repository.UpsertCreated, nil
}

func (m *mockReconciler) SyncUser(ctx context.Context, userID string) (*model.Subscription, error) {
	if m.SyncUserFunc != nil {
		return m.SyncUserFunc(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (m *mockReconciler) appliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

func (m *mockReconciler) appliedSnap(i int) *adapter.SubscriptionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied[i]
}

// mockGateway backs the webhook session-resolution path.
type mockGateway struct {
	GetCheckoutSessionFunc func(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error)
	GetSubscriptionFunc    func(ctx context.Context, externalSubscriptionID string) (*adapter.SubscriptionSnapshot, error)
}

func (m *mockGateway) Name() string { return "mock" }
func (m *mockGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	return "cus_mock", nil
}
func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutSessionParams) (*adapter.CheckoutSession, error) {
	return nil, domain.ErrOperationFailed
}
func (m *mockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	if m.GetCheckoutSessionFunc != nil {
		return m.GetCheckoutSessionFunc(ctx, sessionID)
	}
	return nil, domain.ErrNotFound
}
func (m *mockGateway) GetSubscription(ctx context.Context, externalSubscriptionID string) (*adapter.SubscriptionSnapshot, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, externalSubscriptionID)
	}
	return nil, domain.ErrNotFound
}
func (m *mockGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*adapter.SubscriptionSnapshot, error) {
	return nil, nil
}
func (m *mockGateway) CancelNow(ctx context.Context, externalSubscriptionID string) error {
	return nil
}
func (m *mockGateway) CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error {
	return nil
}

// fakeSubRepo satisfies the poller's read dependency.
type fakeSubRepo struct {
	repository.SubscriptionRepository
	EntitledFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
}

func (f *fakeSubRepo) FindEntitledByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if f.EntitledFunc != nil {
		return f.EntitledFunc(ctx, tx, userID)
	}
	return nil, domain.ErrNotFound
}

// fakeRedis is an in-memory RedisClient for the limiter and deduper.
type fakeRedis struct {
	mu     sync.Mutex
	values map[string]string
	counts map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, counts: map[string]int64{}}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = "1"
	return nil
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = "1"
	return true, nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[key]; ok {
		return v, nil
	}
	return "", domain.ErrNotFound
}

func (f *fakeRedis) Incr(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
		delete(f.counts, k)
	}
	return nil
}

func (f *fakeRedis) Close() error { return nil }

func (f *fakeRedis) hasKeyPrefix(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.values {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}
