package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"genesis/internal/domain"
)

type subscriptionJSON struct {
	UserID    string             `json:"userId"`
	PlanType  domain.PlanType    `json:"planType"`
	Status    string             `json:"status"`
	ExpiresAt *time.Time         `json:"expiresAt"`
	Features  []domain.MediaKind `json:"features"`
}

func (a *App) subscriptionJSON(sub *domain.Subscription) subscriptionJSON {
	features := []domain.MediaKind{}
	if sub.Status == domain.SubscriptionActive {
		if kinds := a.Subscriptions.Features().Kinds(sub.PlanType); kinds != nil {
			features = kinds
		}
	}
	return subscriptionJSON{
		UserID:    sub.UserID,
		PlanType:  sub.PlanType,
		Status:    string(sub.Status),
		ExpiresAt: sub.ExpiresAt,
		Features:  features,
	}
}

// Subscription handles GET /v1/subscription.
func (a *App) Subscription(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, domain.KindUnauthorized, "missing user context")
		return
	}
	sub, err := a.Subscriptions.Current(r.Context(), userID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, a.subscriptionJSON(sub))
}

type upsertSubscriptionRequest struct {
	UserID    string `json:"userId"`
	PlanType  string `json:"planType"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expiresAt"`
}

func (req upsertSubscriptionRequest) toDomain() (*domain.Subscription, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidRequest)
	}
	plan, err := domain.ParsePlanType(req.PlanType)
	if err != nil {
		return nil, err
	}
	status := domain.SubscriptionActive
	if req.Status != "" {
		if status, err = domain.ParseSubscriptionStatus(req.Status); err != nil {
			return nil, err
		}
	}
	sub := &domain.Subscription{UserID: userID, PlanType: plan, Status: status}
	if raw := strings.TrimSpace(req.ExpiresAt); raw != "" {
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: expiresAt must be RFC 3339", domain.ErrInvalidRequest)
		}
		at = at.UTC()
		sub.ExpiresAt = &at
	}
	return sub, nil
}

// UpsertSubscription handles POST /v1/admin/subscriptions.
func (a *App) UpsertSubscription(w http.ResponseWriter, r *http.Request) {
	var body upsertSubscriptionRequest
	if err := decode(w, r, &body); err != nil {
		a.fail(w, r, err)
		return
	}
	sub, err := body.toDomain()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.SubscriptionStore.Upsert(r.Context(), sub); err != nil {
		a.fail(w, r, err)
		return
	}
	a.Logger.Info().
		Str("user_id", sub.UserID).
		Str("plan", string(sub.PlanType)).
		Str("status", string(sub.Status)).
		Str("by", a.currentUserID(r)).
		Msg("subscription updated")
	a.json(w, http.StatusOK, a.subscriptionJSON(sub))
}
