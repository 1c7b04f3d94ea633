package web

import (
	"time"

	"marketplace-subscription/internal/domain/model"
)

type subscriptionResponse struct {
	ID                     string            `json:"id"`
	UserID                 string            `json:"user_id"`
	PlanID                 string            `json:"plan_id"`
	PlanName               string            `json:"plan_name,omitempty"`
	PlanType               string            `json:"plan_type,omitempty"`
	BillingPeriod          string            `json:"billing_period,omitempty"`
	Amount                 int64             `json:"amount"`
	Currency               string            `json:"currency"`
	Status                 string            `json:"status"`
	StartDate              time.Time         `json:"start_date"`
	EndDate                time.Time         `json:"end_date"`
	TrialEndDate           *time.Time        `json:"trial_end_date,omitempty"`
	ExternalSubscriptionID string            `json:"external_subscription_id"`
	CancelledAt            *time.Time        `json:"cancelled_at,omitempty"`
	CancelAtPeriodEnd      bool              `json:"cancel_at_period_end"`
	Metadata               map[string]string `json:"metadata,omitempty"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

func toSubscriptionResponse(s *model.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                     s.ID,
		UserID:                 s.UserID,
		PlanID:                 s.PlanID,
		PlanName:               s.PlanName,
		PlanType:               s.PlanType,
		BillingPeriod:          s.BillingPeriod,
		Amount:                 s.Amount,
		Currency:               s.Currency,
		Status:                 string(s.Status),
		StartDate:              s.StartDate,
		EndDate:                s.EndDate,
		TrialEndDate:           s.TrialEndDate,
		ExternalSubscriptionID: s.ExternalSubscriptionID,
		CancelledAt:            s.CancelledAt,
		CancelAtPeriodEnd:      s.CancelAtPeriodEnd(),
		Metadata:               s.Metadata,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

func toSubscriptionResponses(subs []*model.Subscription) []subscriptionResponse {
	out := make([]subscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubscriptionResponse(s))
	}
	return out
}
