package domain

import (
	"context"
	"errors"
	"time"
)

// WebhookEventType names a lifecycle event delivered to the tenant app.
type WebhookEventType string

const (
	WebhookInvitationCreated         WebhookEventType = "invitation.created"
	WebhookInvitationCompleted       WebhookEventType = "invitation.completed"
	WebhookInvitationSignupCompleted WebhookEventType = "invitation.signup_completed"
)

// ErrWebhookRejected is returned by a dispatcher when the tenant endpoint answers with a non-2xx status.
var ErrWebhookRejected = errors.New("webhook endpoint returned non-2xx status")

// WebhookData is the invitation snapshot carried by a webhook.
// swagger:model WebhookData
type WebhookData struct {
	InvitationID      string           `json:"invitationId"`
	AppID             string           `json:"appId"`
	InviterID         string           `json:"inviterId"`
	InviteeIdentifier string           `json:"inviteeIdentifier"`
	Status            InvitationStatus `json:"status"`
	Metadata          Metadata         `json:"metadata"`
	CreatedAt         *time.Time       `json:"createdAt,omitempty"`
	CompletedAt       *time.Time       `json:"completedAt,omitempty"`
	SignedUpAt        *time.Time       `json:"signedUpAt,omitempty"`
	SignedUpUserID    *string          `json:"signedUpUserId,omitempty"`
}

// WebhookPayload is the JSON body POSTed to a tenant's webhook URL.
// swagger:model WebhookPayload
type WebhookPayload struct {
	Type WebhookEventType `json:"type"`
	Data WebhookData      `json:"data"`
}

// NewWebhookPayload snapshots inv for the given event.
func NewWebhookPayload(eventType WebhookEventType, inv *Invitation) WebhookPayload {
	createdAt := inv.CreatedAt
	metadata := inv.Metadata
	if metadata == nil {
		metadata = Metadata{}
	}
	return WebhookPayload{
		Type: eventType,
		Data: WebhookData{
			InvitationID:      inv.ID,
			AppID:             inv.AppID,
			InviterID:         inv.InviterID,
			InviteeIdentifier: inv.InviteeIdentifier,
			Status:            inv.Status,
			Metadata:          metadata,
			CreatedAt:         &createdAt,
			CompletedAt:       inv.CompletedAt,
			SignedUpAt:        inv.SignedUpAt,
			SignedUpUserID:    inv.SignedUpUserID,
		},
	}
}

// WebhookResponse is what the tenant endpoint answered.
// swagger:model WebhookResponse
type WebhookResponse struct {
	StatusCode int    `json:"status"`
	Body       string `json:"body"`
}

// WebhookDispatcher performs exactly one POST per call, without retries.
// On a non-2xx answer it returns both the response and an error wrapping ErrWebhookRejected.
type WebhookDispatcher interface {
	Deliver(ctx context.Context, url, authHeader string, payload WebhookPayload) (*WebhookResponse, error)
}
