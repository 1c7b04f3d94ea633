package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

// Index names referenced when classifying unique violations.
const (
	idxExternalSubscriptionID = "subscriptions_external_subscription_id_key"
	idxOneEntitledPerUser     = "subscriptions_one_entitled_per_user"
)

const subscriptionCols = `id, user_id, plan_id, plan_name, plan_type, billing_period, amount, currency, status, start_date, end_date, trial_end_date, external_subscription_id, external_customer_id, cancelled_at, metadata, provider_updated_at, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

// Upsert inserts the record, or refreshes the existing row keyed by
// external_subscription_id when the incoming snapshot is strictly newer and
// the row is not terminal. The uniqueness constraint is the synchronization
// primitive between the checkout success handler and the webhook: both run
// this statement and exactly one insert wins.
func (r *subscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) (*model.Subscription, repository.UpsertOutcome, error) {
	meta, err := json.Marshal(orEmpty(s.Metadata))
	if err != nil {
		return nil, "", domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO subscriptions (
  id, user_id, plan_id, plan_name, plan_type, billing_period, amount, currency,
  status, start_date, end_date, trial_end_date, external_subscription_id,
  external_customer_id, cancelled_at, metadata, provider_updated_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW(),NOW())
ON CONFLICT (external_subscription_id) DO UPDATE SET
  status = EXCLUDED.status,
  start_date = EXCLUDED.start_date,
  end_date = EXCLUDED.end_date,
  trial_end_date = EXCLUDED.trial_end_date,
  external_customer_id = EXCLUDED.external_customer_id,
  metadata = subscriptions.metadata || EXCLUDED.metadata,
  provider_updated_at = EXCLUDED.provider_updated_at,
  updated_at = NOW()
WHERE subscriptions.status <> 'cancelled'
  AND EXCLUDED.provider_updated_at > subscriptions.provider_updated_at
RETURNING ` + subscriptionCols + `, (xmax = 0) AS inserted;`

	row, err := pickRow(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, s.PlanName, s.PlanType, s.BillingPeriod, s.Amount, s.Currency,
		s.Status, s.StartDate, s.EndDate, s.TrialEndDate, s.ExternalSubscriptionID,
		s.ExternalCustomerID, s.CancelledAt, meta, s.ProviderUpdatedAt)
	if err != nil {
		return nil, "", err
	}

	stored, inserted, err := scanSubWithInserted(row)
	if err == nil {
		if inserted {
			return stored, repository.UpsertCreated, nil
		}
		return stored, repository.UpsertUpdated, nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict row exists but the snapshot was stale or the row is
		// terminal. Return the stored record untouched.
		existing, ferr := r.FindByExternalID(ctx, tx, s.ExternalSubscriptionID)
		if ferr != nil {
			return nil, "", ferr
		}
		return existing, repository.UpsertUnchanged, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == idxOneEntitledPerUser {
		// A different subscription already entitles this user. Converge on
		// the stored record rather than creating a second entitlement.
		existing, ferr := r.FindEntitledByUser(ctx, tx, s.UserID)
		if ferr != nil {
			return nil, "", domain.ErrActiveSubscription
		}
		return existing, repository.UpsertUnchanged, nil
	}

	return nil, "", domain.ErrOperationFailed
}

// Update rewrites the mutable fields of an existing row. Used by the
// cancellation path, which mutates local state outside reconcile ordering.
func (r *subscriptionRepo) Update(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	meta, err := json.Marshal(orEmpty(s.Metadata))
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
UPDATE subscriptions SET
  status=$2, start_date=$3, end_date=$4, trial_end_date=$5, cancelled_at=$6,
  metadata=$7, provider_updated_at=$8, updated_at=NOW()
WHERE id=$1;`

	tag, err := execSQL(ctx, r.pool, tx, q, s.ID, s.Status, s.StartDate, s.EndDate, s.TrialEndDate, s.CancelledAt, meta, s.ProviderUpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.Subscription, error) {
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE external_subscription_id=$1 LIMIT 1;`
	return r.queryOne(ctx, tx, q, externalID)
}

func (r *subscriptionRepo) FindEntitledByUser(ctx context.Context, tx repository.Tx, userID string) (*model.Subscription, error) {
	const q = `
SELECT ` + subscriptionCols + `
  FROM subscriptions
 WHERE user_id=$1 AND status IN ('trial','active')
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindAllByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Subscription, error) {
	const q = `SELECT ` + subscriptionCols + ` FROM subscriptions WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) LatestCustomerID(ctx context.Context, tx repository.Tx, userID string) (string, error) {
	const q = `
SELECT external_customer_id
  FROM subscriptions
 WHERE user_id=$1 AND external_customer_id <> ''
 ORDER BY created_at DESC
 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return "", err
	}
	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", domain.ErrReadDatabaseRow
	}
	return id, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status model.SubscriptionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = count
	}
	return out, nil
}

func (r *subscriptionRepo) ListStaleEntitled(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + subscriptionCols + `
  FROM subscriptions
 WHERE status IN ('trial','active','past_due') AND provider_updated_at < $1
 ORDER BY provider_updated_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSub(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...interface{}) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSub(row)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanSub(row scannable) (*model.Subscription, error) {
	s := &model.Subscription{}
	var meta []byte
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.PlanType, &s.BillingPeriod,
		&s.Amount, &s.Currency, &s.Status, &s.StartDate, &s.EndDate, &s.TrialEndDate,
		&s.ExternalSubscriptionID, &s.ExternalCustomerID, &s.CancelledAt, &meta,
		&s.ProviderUpdatedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return s, nil
}

func scanSubWithInserted(row scannable) (*model.Subscription, bool, error) {
	s := &model.Subscription{}
	var meta []byte
	var inserted bool
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.PlanType, &s.BillingPeriod,
		&s.Amount, &s.Currency, &s.Status, &s.StartDate, &s.EndDate, &s.TrialEndDate,
		&s.ExternalSubscriptionID, &s.ExternalCustomerID, &s.CancelledAt, &meta,
		&s.ProviderUpdatedAt, &s.CreatedAt, &s.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, false, domain.ErrReadDatabaseRow
		}
	}
	return s, inserted, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
