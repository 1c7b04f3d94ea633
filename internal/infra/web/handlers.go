package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"marketplace-subscription/internal/domain"
	"marketplace-subscription/internal/domain/model"
	"marketplace-subscription/internal/infra/logging"
	"marketplace-subscription/internal/infra/redis"
	"marketplace-subscription/internal/usecase"
)

type checkoutSessionRequest struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	PriceID      string `json:"price_id"`
	UserType     string `json:"user_type"`
	PlanTier     string `json:"plan_tier"`
	BillingCycle string `json:"billing_cycle"`
	SuccessURL   string `json:"success_url"`
	CancelURL    string `json:"cancel_url"`
}

func (s *Server) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := logging.UserID(ctx)

	allowed, err := s.limiter.Allow(ctx, redis.CheckoutKey(caller), s.rateLimit.CheckoutPerMinute, time.Minute)
	if err != nil {
		// Limiter outage must not take checkout down with it.
		logging.With(ctx, s.log).Warn().Err(err).Msg("rate limiter unavailable")
	} else if !allowed {
		http.Error(w, "Too many checkout attempts, try again shortly", http.StatusTooManyRequests)
		return
	}

	var req checkoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := s.checkoutUC.Initiate(ctx, caller, usecase.CheckoutInput{
		UserID: req.UserID,
		Email:  req.Email,
		Plan: model.PlanSelection{
			PriceID:      req.PriceID,
			UserType:     model.UserType(req.UserType),
			PlanTier:     model.PlanTier(req.PlanTier),
			BillingCycle: model.BillingCycle(req.BillingCycle),
		},
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id":   res.SessionID,
		"redirect_url": res.RedirectURL,
	})
}

type confirmCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := logging.UserID(ctx)

	var req confirmCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sub, err := s.checkoutUC.ConfirmSuccess(ctx, caller, req.SessionID)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionResponse(sub)})
		return
	}
	if !errors.Is(err, domain.ErrProviderData) {
		s.writeError(w, r, err)
		return
	}

	// Provider has the session but no subscription yet; the webhook may land
	// first. Wait a bounded moment for the record to become visible.
	if s.poller.Await(ctx, caller) {
		if entitled, ferr := s.subUC.Entitled(ctx, caller); ferr == nil {
			writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionResponse(entitled)})
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"pending": true,
		"message": "checkout is still being processed",
	})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subs, err := s.subUC.ListForUser(ctx, logging.UserID(ctx))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscriptions": toSubscriptionResponses(subs)})
}

func (s *Server) handleSyncSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, err := s.reconciler.SyncUser(ctx, logging.UserID(ctx))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]any{"subscription": nil, "message": "no provider subscription found"})
			return
		}
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"subscription": toSubscriptionResponse(sub)})
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var req cancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	sub, err := s.subUC.Cancel(ctx, logging.UserID(ctx), id, req.Immediate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	msg := "subscription will end at the period boundary"
	if req.Immediate {
		msg = "subscription cancelled"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription": toSubscriptionResponse(sub),
		"message":      msg,
	})
}

func (s *Server) handleSubscriptionHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	entries, err := s.subUC.History(ctx, logging.UserID(ctx), id, 100)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto statuses with messages safe to show a
// client. Anything unmapped is a plain 500; details stay in the logs.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "Invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotOwner):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrActiveSubscription):
		http.Error(w, "An active subscription already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrProviderData):
		http.Error(w, "Checkout has not completed", http.StatusConflict)
	case errors.Is(err, domain.ErrProviderUnavailable):
		http.Error(w, "Payment provider is unavailable", http.StatusBadGateway)
	default:
		logging.With(r.Context(), s.log).Error().Err(err).Msg("request failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}
