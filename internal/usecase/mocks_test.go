// File: internal/usecase/mocks_test.go
package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/adapter"
	"marketplace-subscription/internal/domain/ports/repository"
)

// MockSubscriptionRepo is an in-memory SubscriptionRepository that mirrors
// the storage semantics the use cases depend on: uniqueness on external id,
// the watermark guard, the terminal status, and the single-entitlement rule.
type MockSubscriptionRepo struct {
	mu    sync.Mutex
	byExt map[string]*model.Subscription

	UpsertFunc             func(ctx context.Context, tx repository.Tx, sub *model.Subscription) (*model.Subscription, repository.UpsertOutcome, error)
	FindEntitledByUserFunc func(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error)
	LatestCustomerIDFunc   func(ctx context.Context, tx repository.Tx, userID string) (string, error)
}

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{byExt: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, sub *model.Subscription) (*model.Subscription, repository.UpsertOutcome, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, sub)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.byExt[sub.ExternalSubscriptionID]
	if ok {
		if existing.Status.IsTerminal() || !sub.ProviderUpdatedAt.After(existing.ProviderUpdatedAt) {
			cp := *existing
			return &cp, repository.UpsertUnchanged, nil
		}
		merged := make(map[string]string, len(existing.Metadata)+len(sub.Metadata))
		for k, v := range existing.Metadata {
			merged[k] = v
		}
		for k, v := range sub.Metadata {
			merged[k] = v
		}
		updated := *existing
		updated.Status = sub.Status
		updated.StartDate = sub.StartDate
		updated.EndDate = sub.EndDate
		updated.TrialEndDate = sub.TrialEndDate
		updated.ExternalCustomerID = sub.ExternalCustomerID
		updated.Metadata = merged
		updated.ProviderUpdatedAt = sub.ProviderUpdatedAt
		updated.UpdatedAt = time.Now()
		m.byExt[sub.ExternalSubscriptionID] = &updated
		cp := updated
		return &cp, repository.UpsertUpdated, nil
	}

	// Single-entitlement rule: a second entitled row for the same user
	// resolves to the stored one.
	if sub.Status.Entitled() {
		for _, s := range m.byExt {
			if s.UserID == sub.UserID && s.Status.Entitled() {
				cp := *s
				return &cp, repository.UpsertUnchanged, nil
			}
		}
	}

	cp := *sub
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.byExt[sub.ExternalSubscriptionID] = &cp
	out := cp
	return &out, repository.UpsertCreated, nil
}

func (m *MockSubscriptionRepo) Update(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ext, s := range m.byExt {
		if s.ID == sub.ID {
			cp := *sub
			m.byExt[ext] = &cp
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byExt {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.byExt[externalID]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindEntitledByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	if m.FindEntitledByUserFunc != nil {
		return m.FindEntitledByUserFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byExt {
		if s.UserID == userID && s.Status.Entitled() {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindAllByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byExt {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockSubscriptionRepo) LatestCustomerID(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	if m.LatestCustomerIDFunc != nil {
		return m.LatestCustomerIDFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byExt {
		if s.UserID == userID && s.ExternalCustomerID != "" {
			return s.ExternalCustomerID, nil
		}
	}
	return "", domain.ErrNotFound
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.byExt {
		out[s.Status]++
	}
	return out, nil
}

func (m *MockSubscriptionRepo) ListStaleEntitled(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.byExt {
		if s.Status.Entitled() && s.ProviderUpdatedAt.Before(olderThan) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

// MockAuditRepo records entries in memory.
type MockAuditRepo struct {
	mu      sync.Mutex
	Entries []*model.AuditEntry

	AppendFunc func(ctx context.Context, tx repository.Tx, entry *model.AuditEntry) error
}

func NewMockAuditRepo() *MockAuditRepo {
	return &MockAuditRepo{}
}

func (m *MockAuditRepo) Append(ctx context.Context, tx repository.Tx, entry *model.AuditEntry) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.Entries = append(m.Entries, &cp)
	return nil
}

func (m *MockAuditRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEntry
	for _, e := range m.Entries {
		if e.SubscriptionID == subscriptionID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockAuditRepo) Last() *model.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Entries) == 0 {
		return nil
	}
	return m.Entries[len(m.Entries)-1]
}

// MockTxManager runs the callback without a real transaction.
type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// MockBillingGateway is a configurable BillingGateway.
type MockBillingGateway struct {
	CreateCustomerFunc          func(ctx context.Context, email string, metadata map[string]string) (string, error)
	CreateCheckoutSessionFunc   func(ctx context.Context, params adapter.CheckoutSessionParams) (*adapter.CheckoutSession, error)
	GetCheckoutSessionFunc      func(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error)
	GetSubscriptionFunc         func(ctx context.Context, externalSubscriptionID string) (*adapter.SubscriptionSnapshot, error)
	ListActiveSubscriptionsFunc func(ctx context.Context, customerID string) ([]*adapter.SubscriptionSnapshot, error)
	CancelNowFunc               func(ctx context.Context, externalSubscriptionID string) error
	CancelAtPeriodEndFunc       func(ctx context.Context, externalSubscriptionID string) error
}

func (m *MockBillingGateway) Name() string { return "mock" }

func (m *MockBillingGateway) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, email, metadata)
	}
	return "cus_mock", nil
}

func (m *MockBillingGateway) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutSessionParams) (*adapter.CheckoutSession, error) {
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}
	return &adapter.CheckoutSession{ID: "cs_mock", URL: "https://checkout.example/cs_mock", Metadata: params.Metadata}, nil
}

func (m *MockBillingGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*adapter.CheckoutSession, error) {
	if m.GetCheckoutSessionFunc != nil {
		return m.GetCheckoutSessionFunc(ctx, sessionID)
	}
	return nil, domain.ErrNotFound
}

func (m *MockBillingGateway) GetSubscription(ctx context.Context, externalSubscriptionID string) (*adapter.SubscriptionSnapshot, error) {
	if m.GetSubscriptionFunc != nil {
		return m.GetSubscriptionFunc(ctx, externalSubscriptionID)
	}
	return nil, domain.ErrNotFound
}

func (m *MockBillingGateway) ListActiveSubscriptions(ctx context.Context, customerID string) ([]*adapter.SubscriptionSnapshot, error) {
	if m.ListActiveSubscriptionsFunc != nil {
		return m.ListActiveSubscriptionsFunc(ctx, customerID)
	}
	return nil, nil
}

func (m *MockBillingGateway) CancelNow(ctx context.Context, externalSubscriptionID string) error {
	if m.CancelNowFunc != nil {
		return m.CancelNowFunc(ctx, externalSubscriptionID)
	}
	return nil
}

func (m *MockBillingGateway) CancelAtPeriodEnd(ctx context.Context, externalSubscriptionID string) error {
	if m.CancelAtPeriodEndFunc != nil {
		return m.CancelAtPeriodEndFunc(ctx, externalSubscriptionID)
	}
	return nil
}

// fakeClock steps time manually; After fires immediately with the advanced
// time so poller tests run without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}
