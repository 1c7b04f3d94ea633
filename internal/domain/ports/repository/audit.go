package repository

import (
	"context"

	"marketplace-subscription/internal/domain/model"
)

// AuditLogRepository is the append-only port for subscription audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, tx Tx, entry *model.AuditEntry) error
	ListBySubscription(ctx context.Context, tx Tx, subscriptionID string, limit int) ([]*model.AuditEntry, error)
}
