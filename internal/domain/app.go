package domain

import (
	"context"
	"time"
)

// App is a tenant application registered by a dashboard user.
// swagger:model App
type App struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"userId"`
	WebhookURL    *string   `json:"webhookUrl"`
	AuthHeader    *string   `json:"authHeader"`
	IOSAppURL     *string   `json:"iosAppUrl"`
	AndroidAppURL *string   `json:"androidAppUrl"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// HasWebhook reports whether lifecycle events should be delivered for this app.
func (a *App) HasWebhook() bool {
	return a.WebhookURL != nil && *a.WebhookURL != ""
}

// WebhookAuthorization returns the configured auth header, or "" when unset.
func (a *App) WebhookAuthorization() string {
	if a.AuthHeader == nil {
		return ""
	}
	return *a.AuthHeader
}

// AppInput carries the mutable fields of an app for create and update.
type AppInput struct {
	Name          string
	WebhookURL    *string
	AuthHeader    *string
	IOSAppURL     *string
	AndroidAppURL *string
}

// Scope identifies who is acting on an app. Exactly one field is set:
// UserID for dashboard callers (the app must be owned by that user) or
// AppID for SDK callers authenticated by the app's static secret.
type Scope struct {
	UserID string
	AppID  string
}

// UserScope returns a dashboard scope.
func UserScope(userID string) Scope { return Scope{UserID: userID} }

// AppScope returns an SDK scope bound to one app.
func AppScope(appID string) Scope { return Scope{AppID: appID} }

// AppRepository defines storage operations for tenant apps.
type AppRepository interface {
	Create(ctx context.Context, app *App) error
	GetByID(ctx context.Context, id string) (*App, error)
	ListByOwnerID(ctx context.Context, ownerID string) ([]*App, error)
	ListOwnerIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, app *App) error
	Delete(ctx context.Context, id string) error
}

// TestWebhookInput is the body of a dashboard webhook test.
type TestWebhookInput struct {
	Type              string
	InviterID         string
	InviteeIdentifier string
	InvitationID      string
	Metadata          Metadata
}

// TestWebhookResult reports what was sent and how the tenant endpoint answered.
// swagger:model TestWebhookResult
type TestWebhookResult struct {
	Payload  WebhookPayload   `json:"payload"`
	Response *WebhookResponse `json:"webhookResponse,omitempty"`
}

// AppService defines dashboard operations on tenant apps.
type AppService interface {
	Create(ctx context.Context, ownerID string, in AppInput) (*App, error)
	List(ctx context.Context, ownerID string) ([]*App, error)
	Get(ctx context.Context, scope Scope, appID string) (*App, error)
	Update(ctx context.Context, ownerID, appID string, in AppInput) (*App, error)
	Delete(ctx context.Context, ownerID, appID string) error
	SendTestWebhook(ctx context.Context, ownerID, appID string, in TestWebhookInput) (*TestWebhookResult, error)
}
