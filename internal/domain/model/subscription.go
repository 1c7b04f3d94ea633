package model

import (
	"time"

	"marketplace-subscription/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// MapProviderStatus translates the provider's reported status into the local
// enumeration. Unknown statuses collapse to cancelled rather than silently
// keeping a user entitled.
func MapProviderStatus(providerStatus string) SubscriptionStatus {
	switch providerStatus {
	case "trialing":
		return SubscriptionStatusTrial
	case "active":
		return SubscriptionStatusActive
	case "past_due":
		return SubscriptionStatusPastDue
	default:
		return SubscriptionStatusCancelled
	}
}

// IsTerminal reports whether no further transitions may be applied.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

// Entitled reports whether the status grants access to paid features.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionStatusTrial || s == SubscriptionStatusActive
}

// Subscription is a user's individual subscription record. It mirrors the
// provider's subscription object keyed by ExternalSubscriptionID, which is
// unique in storage and acts as the idempotency key for all create paths.
type Subscription struct {
	ID            string // UUID, store-owned
	UserID        string // UUID of owning user
	PlanID        string
	PlanName      string
	PlanType      string
	BillingPeriod string
	Amount        int64 // minor units (cents)
	Currency      string
	Status        SubscriptionStatus
	StartDate     time.Time
	EndDate       time.Time
	TrialEndDate  *time.Time

	ExternalSubscriptionID string
	ExternalCustomerID     string

	CancelledAt *time.Time
	Metadata    map[string]string

	// ProviderUpdatedAt is the watermark of the newest provider snapshot
	// applied to this record. Snapshots that are not strictly newer are
	// discarded, regardless of arrival order.
	ProviderUpdatedAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

const MetadataCancelAtPeriodEnd = "cancel_at_period_end"

// CancelAtPeriodEnd reports whether a deferred cancellation has been
// requested but the terminal status flip has not arrived yet.
func (s *Subscription) CancelAtPeriodEnd() bool {
	return s.Metadata[MetadataCancelAtPeriodEnd] == "true"
}

// UserType enumerates the marketplace roles that can purchase a plan.
type UserType string

const (
	UserTypeSponsor UserType = "sponsor"
	UserTypeMaid    UserType = "maid"
	UserTypeAgency  UserType = "agency"
)

type PlanTier string

const (
	PlanTierBasic   PlanTier = "basic"
	PlanTierPro     PlanTier = "pro"
	PlanTierPremium PlanTier = "premium"
)

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// PlanSelection is the validated plan choice carried through checkout and
// attached to the provider session as correlation metadata.
type PlanSelection struct {
	PriceID      string
	UserType     UserType
	PlanTier     PlanTier
	BillingCycle BillingCycle
}

func (p PlanSelection) Validate() error {
	if len(p.PriceID) < 7 || p.PriceID[:6] != "price_" {
		return domain.ErrInvalidArgument
	}
	switch p.UserType {
	case UserTypeSponsor, UserTypeMaid, UserTypeAgency:
	default:
		return domain.ErrInvalidArgument
	}
	switch p.PlanTier {
	case PlanTierBasic, PlanTierPro, PlanTierPremium:
	default:
		return domain.ErrInvalidArgument
	}
	switch p.BillingCycle {
	case BillingCycleMonthly, BillingCycleYearly, BillingCycleAnnual:
	default:
		return domain.ErrInvalidArgument
	}
	return nil
}
