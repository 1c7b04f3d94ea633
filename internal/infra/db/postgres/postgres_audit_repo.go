package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/domain/ports/repository"
)

// Ensure auditLogRepo implements repository.AuditLogRepository
var _ repository.AuditLogRepository = (*auditLogRepo)(nil)

const auditCols = `id, subscription_id, action, actor, before_status, after_status, ts, details`

type auditLogRepo struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepo(pool *pgxpool.Pool) *auditLogRepo {
	return &auditLogRepo{pool: pool}
}

// Append writes one audit record. The table is append-only; there is no
// update or delete path.
func (r *auditLogRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEntry) error {
	details, err := json.Marshal(orEmpty(e.Details))
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO subscription_audit_log (id, subscription_id, action, actor, before_status, after_status, ts, details)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`

	if _, err := execSQL(ctx, r.pool, tx, q, e.ID, e.SubscriptionID, e.Action, e.Actor, e.BeforeStatus, e.AfterStatus, e.Timestamp, details); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *auditLogRepo) ListBySubscription(ctx context.Context, tx repository.Tx, subscriptionID string, limit int) ([]*model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + auditCols + ` FROM subscription_audit_log WHERE subscription_id=$1 ORDER BY ts ASC, id ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, subscriptionID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.AuditEntry
	for rows.Next() {
		e, err := scanAudit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanAudit(row scannable) (*model.AuditEntry, error) {
	e := &model.AuditEntry{}
	var details []byte
	err := row.Scan(&e.ID, &e.SubscriptionID, &e.Action, &e.Actor, &e.BeforeStatus, &e.AfterStatus, &e.Timestamp, &details)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return e, nil
}
