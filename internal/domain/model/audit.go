package model

import "time"

// AuditAction names a recorded mutation of a subscription record.
type AuditAction string

const (
	AuditActionCreated         AuditAction = "subscription.created"
	AuditActionStatusChanged   AuditAction = "subscription.status_changed"
	AuditActionSynced          AuditAction = "subscription.synced"
	AuditActionCancelRequested AuditAction = "subscription.cancel_requested"
	AuditActionCancelled       AuditAction = "subscription.cancelled"
)

// AuditActor identifies the code path that caused a mutation.
type AuditActor string

const (
	AuditActorCheckout AuditActor = "checkout"
	AuditActorWebhook  AuditActor = "webhook"
	AuditActorSync     AuditActor = "sync"
	AuditActorUser     AuditActor = "user"
)

// AuditEntry is an immutable record of a subscription state transition.
// Entries are only ever appended, never updated or deleted.
type AuditEntry struct {
	ID             string // ULID, sortable by creation time
	SubscriptionID string
	Action         AuditAction
	Actor          AuditActor
	BeforeStatus   SubscriptionStatus
	AfterStatus    SubscriptionStatus
	Timestamp      time.Time
	Details        map[string]string
}
