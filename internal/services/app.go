package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"referrski/internal/domain"
)

var appNameRegexp = regexp.MustCompile(`^[a-zA-Z0-9\-_ ]+$`)

const (
	maxAppNameLength = 50
	maxURLLength     = 500
)

type appService struct {
	apps           domain.AppRepository
	webhooks       domain.WebhookDispatcher
	contextTimeout time.Duration
	now            func() time.Time
}

// NewAppService returns an AppService for dashboard app management.
func NewAppService(apps domain.AppRepository, webhooks domain.WebhookDispatcher, timeout time.Duration) domain.AppService {
	return &appService{
		apps:           apps,
		webhooks:       webhooks,
		contextTimeout: timeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func validateAppInput(in domain.AppInput) error {
	verr := &domain.ValidationError{}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		verr.Add("name", "app name is required")
	case len(name) > maxAppNameLength:
		verr.Add("name", fmt.Sprintf("app name must not exceed %d characters", maxAppNameLength))
	case !appNameRegexp.MatchString(name):
		verr.Add("name", "app name can only contain letters, numbers, spaces, hyphens, and underscores")
	}
	checkURL := func(field string, v *string) {
		if v == nil || *v == "" {
			return
		}
		if len(*v) > maxURLLength {
			verr.Add(field, fmt.Sprintf("must not exceed %d characters", maxURLLength))
			return
		}
		u, err := url.Parse(*v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			verr.Add(field, "must be a valid URL")
		}
	}
	checkURL("webhookUrl", in.WebhookURL)
	checkURL("iosAppUrl", in.IOSAppURL)
	checkURL("androidAppUrl", in.AndroidAppURL)
	if in.AuthHeader != nil && len(*in.AuthHeader) > maxURLLength {
		verr.Add("authHeader", fmt.Sprintf("auth header must not exceed %d characters", maxURLLength))
	}
	return verr.OrNil()
}

// emptyToNil stores blank optional settings as NULL.
func emptyToNil(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

func (s *appService) Create(ctx context.Context, ownerID string, in domain.AppInput) (*domain.App, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if err := validateAppInput(in); err != nil {
		return nil, err
	}
	app := &domain.App{
		Name:          strings.TrimSpace(in.Name),
		OwnerID:       ownerID,
		WebhookURL:    emptyToNil(in.WebhookURL),
		AuthHeader:    emptyToNil(in.AuthHeader),
		IOSAppURL:     emptyToNil(in.IOSAppURL),
		AndroidAppURL: emptyToNil(in.AndroidAppURL),
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, fmt.Errorf("create app: %w", err)
	}
	return app, nil
}

func (s *appService) List(ctx context.Context, ownerID string) ([]*domain.App, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	apps, err := s.apps.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	if apps == nil {
		apps = []*domain.App{}
	}
	return apps, nil
}

func (s *appService) Get(ctx context.Context, scope domain.Scope, appID string) (*domain.App, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return resolveApp(ctx, s.apps, scope, appID)
}

// Update replaces name and sets each optional field that is non-nil. An empty string clears it.
func (s *appService) Update(ctx context.Context, ownerID, appID string, in domain.AppInput) (*domain.App, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, domain.UserScope(ownerID), appID)
	if err != nil {
		return nil, err
	}
	if in.Name == "" {
		in.Name = app.Name
	}
	if err := validateAppInput(in); err != nil {
		return nil, err
	}
	app.Name = strings.TrimSpace(in.Name)
	if in.WebhookURL != nil {
		app.WebhookURL = emptyToNil(in.WebhookURL)
	}
	if in.AuthHeader != nil {
		app.AuthHeader = emptyToNil(in.AuthHeader)
	}
	if in.IOSAppURL != nil {
		app.IOSAppURL = emptyToNil(in.IOSAppURL)
	}
	if in.AndroidAppURL != nil {
		app.AndroidAppURL = emptyToNil(in.AndroidAppURL)
	}
	if err := s.apps.Update(ctx, app); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("update app: %w", err)
	}
	return app, nil
}

func (s *appService) Delete(ctx context.Context, ownerID, appID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, domain.UserScope(ownerID), appID)
	if err != nil {
		return err
	}
	if err := s.apps.Delete(ctx, app.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete app: %w", err)
	}
	return nil
}

// SendTestWebhook delivers a synthetic created/completed event to the app's webhook URL.
// A non-2xx answer is still a successful test; only transport failures return an error.
func (s *appService) SendTestWebhook(ctx context.Context, ownerID, appID string, in domain.TestWebhookInput) (*domain.TestWebhookResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, domain.UserScope(ownerID), appID)
	if err != nil {
		return nil, err
	}
	if !app.HasWebhook() {
		return nil, domain.ErrWebhookNotConfigured
	}

	verr := &domain.ValidationError{}
	if !isEmail(in.InviteeIdentifier) {
		verr.Add("inviteeIdentifier", "must be an email address")
	}
	if in.InvitationID != "" {
		if _, err := uuid.Parse(in.InvitationID); err != nil {
			verr.Add("invitationId", "must be a UUID")
		}
	}
	now := s.now()
	inv := &domain.Invitation{
		ID:                in.InvitationID,
		AppID:             app.ID,
		InviteeIdentifier: in.InviteeIdentifier,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	var eventType domain.WebhookEventType
	switch in.Type {
	case "create":
		if strings.TrimSpace(in.InviterID) == "" {
			verr.Add("inviterId", "inviter ID is required")
		}
		eventType = domain.WebhookInvitationCreated
		inv.InviterID = in.InviterID
		inv.Status = domain.InvitationPending
		inv.Metadata = in.Metadata
		if inv.Metadata == nil {
			inv.Metadata = domain.Metadata{}
		}
	case "verify":
		eventType = domain.WebhookInvitationCompleted
		inv.Status = domain.InvitationCompleted
		inv.CompletedAt = &now
	default:
		verr.Add("type", `must be "create" or "verify"`)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	result := &domain.TestWebhookResult{Payload: domain.NewWebhookPayload(eventType, inv)}
	resp, err := s.webhooks.Deliver(ctx, *app.WebhookURL, app.WebhookAuthorization(), result.Payload)
	if resp != nil || err == nil {
		result.Response = resp
		return result, nil
	}
	return result, fmt.Errorf("deliver test webhook: %w", err)
}
