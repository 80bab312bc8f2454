package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"referrski/internal/delivery/http/helpers"
	"referrski/internal/domain"
)

const stripeWebhookBodyLimit = 1 << 20

// stripeSubscription is the part of a Stripe subscription object the sync reads.
// current_period_end moved onto items in newer API versions, so both are decoded.
type stripeSubscription struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	Metadata         map[string]string `json:"metadata"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s stripeSubscription) event(eventType string) domain.StripeSubscriptionEvent {
	ev := domain.StripeSubscriptionEvent{
		Type:           eventType,
		SubscriptionID: s.ID,
		CustomerID:     s.Customer,
		Status:         s.Status,
		UserID:         strings.TrimSpace(s.Metadata["userId"]),
		PlanID:         strings.TrimSpace(s.Metadata["planId"]),
	}
	periodEnd := s.CurrentPeriodEnd
	for _, item := range s.Items.Data {
		if ev.PriceID == "" {
			ev.PriceID = strings.TrimSpace(item.Price.ID)
		}
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		t := time.Unix(periodEnd, 0).UTC()
		ev.CurrentPeriodEnd = &t
	}
	return ev
}

type BillingController struct {
	Logger        *slog.Logger
	Subscriptions domain.SubscriptionService
	WebhookSecret string
}

func NewBillingController(logger *slog.Logger, subscriptions domain.SubscriptionService, webhookSecret string) *BillingController {
	return &BillingController{Logger: logger, Subscriptions: subscriptions, WebhookSecret: webhookSecret}
}

// StripeWebhook godoc
// @Summary Stripe subscription webhook
// @Description Verifies the Stripe-Signature header and syncs customer.subscription.* events into the owner's subscription. Other event types are acknowledged and ignored.
// @Tags billing
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Stripe signature"
// @Success 200 {object} helpers.APIResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Failure 503 {object} helpers.APIResponse "error.code: service_unavailable"
// @Router /billing/stripe/webhook [post]
func (c *BillingController) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if strings.TrimSpace(c.WebhookSecret) == "" {
		helpers.WriteJSONError(w, http.StatusServiceUnavailable, helpers.ErrCodeUnavailable, "webhook secret not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, stripeWebhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "failed to read request body")
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing Stripe signature")
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, c.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid Stripe signature")
		return
	}

	if err := c.handleEvent(r, &event); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) || errors.Is(err, domain.ErrPlanUnavailable) {
			// Acknowledged; redelivering a malformed or unmapped subscription cannot succeed.
			c.Logger.WarnContext(r.Context(), "stripe event skipped", "event_id", event.ID, "type", event.Type, "err", err)
			helpers.WriteJSONSuccess(w, http.StatusOK, map[string]bool{"received": true})
			return
		}
		c.Logger.ErrorContext(r.Context(), "stripe webhook processing failed", "event_id", event.ID, "type", event.Type, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, "processing failed")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, map[string]bool{"received": true})
}

func (c *BillingController) handleEvent(r *http.Request, event *stripelib.Event) error {
	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return c.Subscriptions.ApplyStripeEvent(r.Context(), sub.event(string(event.Type)))
	default:
		c.Logger.InfoContext(r.Context(), "stripe webhook ignored", "type", event.Type, "event_id", event.ID)
		return nil
	}
}
