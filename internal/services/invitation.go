package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"referrski/internal/domain"
	"referrski/internal/metrics"
)

var validate = validator.New()

// isEmail applies the same rule as the `email` tag on request DTOs.
func isEmail(s string) bool {
	return validate.Var(s, "email") == nil
}

const maxIdentifierLength = 255

type invitationService struct {
	apps           domain.AppRepository
	invitations    domain.InvitationRepository
	usage          domain.UsageRepository
	quota          domain.QuotaEnforcer
	webhooks       domain.WebhookDispatcher
	emails         domain.EmailService
	audit          domain.AuditRepository
	publicURL      string
	contextTimeout time.Duration
	effects        effectRunner
	logger         *slog.Logger
	now            func() time.Time
}

// NewInvitationService returns the invitation lifecycle engine.
// publicURL is the base of the accept link placed in invitation emails.
func NewInvitationService(
	apps domain.AppRepository,
	invitations domain.InvitationRepository,
	usage domain.UsageRepository,
	quota domain.QuotaEnforcer,
	webhooks domain.WebhookDispatcher,
	emails domain.EmailService,
	audit domain.AuditRepository,
	publicURL string,
	timeout time.Duration,
	effectTimeout time.Duration,
	logger *slog.Logger,
) domain.InvitationService {
	return &invitationService{
		apps:           apps,
		invitations:    invitations,
		usage:          usage,
		quota:          quota,
		webhooks:       webhooks,
		emails:         emails,
		audit:          audit,
		publicURL:      strings.TrimSuffix(publicURL, "/"),
		contextTimeout: timeout,
		effects:        effectRunner{logger: logger, timeout: effectTimeout},
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// resolveApp loads appID and checks it against the caller's scope.
// Mismatches are reported as ErrNotFound so the caller cannot probe for other tenants' apps.
func resolveApp(ctx context.Context, apps domain.AppRepository, scope domain.Scope, appID string) (*domain.App, error) {
	switch {
	case scope.UserID != "":
	case scope.AppID != "":
		if scope.AppID != appID {
			return nil, domain.ErrNotFound
		}
	default:
		return nil, domain.ErrUnauthorized
	}
	app, err := apps.GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get app: %w", err)
	}
	if scope.UserID != "" && app.OwnerID != scope.UserID {
		return nil, domain.ErrNotFound
	}
	return app, nil
}

func validateCreate(in domain.CreateInvitationInput) error {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(in.InviterID) == "" {
		verr.Add("inviterId", "inviter ID is required")
	} else if len(in.InviterID) > maxIdentifierLength {
		verr.Add("inviterId", fmt.Sprintf("must be at most %d characters", maxIdentifierLength))
	}
	if strings.TrimSpace(in.InviteeIdentifier) == "" {
		verr.Add("inviteeIdentifier", "invitee identifier is required")
	} else if len(in.InviteeIdentifier) > maxIdentifierLength {
		verr.Add("inviteeIdentifier", fmt.Sprintf("must be at most %d characters", maxIdentifierLength))
	}
	if in.Email != nil {
		if in.InviteeIdentifier != "" && !isEmail(in.InviteeIdentifier) {
			verr.Add("inviteeIdentifier", "must be an email address when email is requested")
		}
		if strings.TrimSpace(in.Email.FromName) == "" {
			verr.Add("email.fromName", "from name is required for email")
		}
		if strings.TrimSpace(in.Email.Subject) == "" {
			verr.Add("email.subject", "email subject is required")
		}
		if strings.TrimSpace(in.Email.Content) == "" {
			verr.Add("email.content", "email content is required")
		}
		if in.Email.ReplyTo != "" && !isEmail(in.Email.ReplyTo) {
			verr.Add("email.replyTo", "must be an email address")
		}
	}
	if err := in.Metadata.Validate(); err != nil {
		var mErr *domain.ValidationError
		if errors.As(err, &mErr) {
			verr.Fields = append(verr.Fields, mErr.Fields...)
		}
	}
	return verr.OrNil()
}

func (s *invitationService) Create(ctx context.Context, scope domain.Scope, appID string, in domain.CreateInvitationInput) (*domain.Invitation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return nil, err
	}

	usage, err := s.usage.Get(ctx, app.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	allowed, err := s.quota.CanCreate(ctx, app.OwnerID, usage.TotalInvites)
	if err != nil {
		s.logger.ErrorContext(ctx, "quota check failed, denying create", "app_id", app.ID, "owner_id", app.OwnerID, "err", err)
		return nil, domain.ErrQuotaExceeded
	}
	if !allowed {
		return nil, domain.ErrQuotaExceeded
	}

	if err := validateCreate(in); err != nil {
		return nil, err
	}

	inv := domain.NewInvitation(app.ID, in.InviterID, in.InviteeIdentifier, in.Metadata)
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	metrics.InvitationsCreated.Inc()

	effects := []postCommitEffect{s.incrementUsage(app)}
	if in.Email != nil {
		effects = append(effects, s.sendEmail(app, inv, *in.Email))
	}
	effects = append(effects, s.notify(app, domain.WebhookInvitationCreated, inv))
	s.effects.run(ctx, invitationAttrs(inv), effects...)

	return inv, nil
}

func (s *invitationService) Verify(ctx context.Context, scope domain.Scope, appID string, in domain.VerifyInvitationInput) (*domain.Invitation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.InviteeIdentifier) == "" {
		return nil, domain.NewValidationError("inviteeIdentifier", "invitee identifier is required")
	}
	pending, err := s.invitations.FindPending(ctx, app.ID, in.InviteeIdentifier, in.InvitationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find pending invitation: %w", err)
	}
	return s.complete(ctx, app, pending.ID)
}

func (s *invitationService) VerifyByID(ctx context.Context, invitationID string) (*domain.Invitation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Status != domain.InvitationPending {
		return nil, domain.ErrNotFound
	}
	app, err := s.apps.GetByID(ctx, inv.AppID)
	if err != nil {
		return nil, fmt.Errorf("get app: %w", err)
	}
	return s.complete(ctx, app, inv.ID)
}

// complete performs the conditional pending->completed update. A concurrent
// verify that lost the race sees ErrNotFound and fires no effects.
func (s *invitationService) complete(ctx context.Context, app *domain.App, invitationID string) (*domain.Invitation, error) {
	done, err := s.invitations.MarkCompleted(ctx, invitationID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("complete invitation: %w", err)
	}
	metrics.Transitions.WithLabelValues("completed").Inc()
	s.effects.run(ctx, invitationAttrs(done), s.notify(app, domain.WebhookInvitationCompleted, done))
	return done, nil
}

func (s *invitationService) GetPublic(ctx context.Context, invitationID string) (*domain.PublicInvitation, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get invitation: %w", err)
	}
	if inv.Status != domain.InvitationPending {
		return nil, domain.ErrNotFound
	}
	app, err := s.apps.GetByID(ctx, inv.AppID)
	if err != nil {
		return nil, fmt.Errorf("get app: %w", err)
	}
	return &domain.PublicInvitation{
		Invitation:    *inv,
		AppName:       app.Name,
		IOSAppURL:     app.IOSAppURL,
		AndroidAppURL: app.AndroidAppURL,
	}, nil
}

func (s *invitationService) ValidateSignup(ctx context.Context, scope domain.Scope, appID, userThatSignedUpID string) (*domain.Invitation, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(userThatSignedUpID) == "" {
		return nil, false, domain.NewValidationError("userThatSignedUpId", "user ID is required")
	}
	match, err := s.invitations.FindCompletedNotSignedUp(ctx, app.ID, userThatSignedUpID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find completed invitation: %w", err)
	}
	signed, err := s.invitations.MarkSignedUp(ctx, match.ID, userThatSignedUpID, s.now())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("mark signed up: %w", err)
	}
	metrics.Transitions.WithLabelValues("signed_up").Inc()
	s.effects.run(ctx, invitationAttrs(signed), s.notify(app, domain.WebhookInvitationSignupCompleted, signed))
	return signed, true, nil
}

func (s *invitationService) List(ctx context.Context, scope domain.Scope, appID string, params domain.PaginationParams) ([]*domain.Invitation, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return nil, 0, err
	}
	list, total, err := s.invitations.ListByAppID(ctx, app.ID, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list invitations: %w", err)
	}
	return list, total, nil
}

func (s *invitationService) Delete(ctx context.Context, scope domain.Scope, appID, invitationID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return err
	}
	if err := s.invitations.Delete(ctx, app.ID, invitationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("delete invitation: %w", err)
	}
	return nil
}

func (s *invitationService) DeleteByInviter(ctx context.Context, scope domain.Scope, appID, inviterID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, scope, appID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(inviterID) == "" {
		return 0, domain.NewValidationError("inviterId", "inviter ID is required")
	}
	n, err := s.invitations.DeleteByInviter(ctx, app.ID, inviterID)
	if err != nil {
		return 0, fmt.Errorf("delete invitations by inviter: %w", err)
	}
	s.logger.InfoContext(ctx, "inviter invitations erased", "app_id", app.ID, "deleted", n)
	return n, nil
}

// EraseInviter deletes inviterID's invitations across every app owned by ownerID.
func (s *invitationService) EraseInviter(ctx context.Context, ownerID, inviterID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if ownerID == "" {
		return 0, domain.ErrUnauthorized
	}
	if strings.TrimSpace(inviterID) == "" {
		return 0, domain.NewValidationError("inviterId", "inviter ID is required")
	}
	apps, err := s.apps.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("list apps: %w", err)
	}
	if len(apps) == 0 {
		return 0, domain.ErrForbidden
	}
	appIDs := make([]string, 0, len(apps))
	for _, a := range apps {
		appIDs = append(appIDs, a.ID)
	}
	exists, err := s.invitations.ExistsForInviterInApps(ctx, appIDs, inviterID)
	if err != nil {
		return 0, fmt.Errorf("check inviter invitations: %w", err)
	}
	if !exists {
		return 0, domain.ErrForbidden
	}
	n, err := s.invitations.DeleteByInviterInApps(ctx, appIDs, inviterID)
	if err != nil {
		return 0, fmt.Errorf("delete inviter invitations: %w", err)
	}

	entry := &domain.AuditEntry{
		UserID:    ownerID,
		Action:    "delete_inviter_invitations",
		Details:   map[string]any{"inviterId": inviterID, "deleted": n, "appIds": appIDs},
		CreatedAt: s.now(),
	}
	s.effects.run(ctx, []any{"owner_id", ownerID}, postCommitEffect{
		name: "audit_log",
		run: func(ctx context.Context) error {
			if s.audit == nil {
				return nil
			}
			return s.audit.Insert(ctx, entry)
		},
	})
	return n, nil
}

func (s *invitationService) incrementUsage(app *domain.App) postCommitEffect {
	return postCommitEffect{
		name: "usage_increment",
		run: func(ctx context.Context) error {
			total, err := s.usage.Increment(ctx, app.OwnerID)
			if err != nil {
				return err
			}
			limit, err := s.quota.Limit(ctx, app.OwnerID)
			if err == nil && total > limit {
				metrics.QuotaOvershoot.Inc()
				s.logger.WarnContext(ctx, "usage exceeded plan limit after concurrent creates",
					"owner_id", app.OwnerID, "total", total, "limit", limit)
			}
			return nil
		},
	}
}

func (s *invitationService) sendEmail(app *domain.App, inv *domain.Invitation, spec domain.EmailSpec) postCommitEffect {
	return postCommitEffect{
		name: "email",
		run: func(ctx context.Context) error {
			if s.emails == nil {
				return nil
			}
			data := &domain.InvitationEmailData{
				To:          inv.InviteeIdentifier,
				AppName:     app.Name,
				InviterName: inv.InviterID,
				Content:     spec.Content,
				AcceptURL:   s.publicURL + "/invitations/" + inv.ID + "/accept",
			}
			if app.IOSAppURL != nil {
				data.IOSAppURL = *app.IOSAppURL
			}
			if app.AndroidAppURL != nil {
				data.AndroidAppURL = *app.AndroidAppURL
			}
			return s.emails.SendInvitation(ctx, data, spec)
		},
	}
}

// notify snapshots inv now so the payload reflects the committed row.
func (s *invitationService) notify(app *domain.App, eventType domain.WebhookEventType, inv *domain.Invitation) postCommitEffect {
	payload := domain.NewWebhookPayload(eventType, inv)
	return postCommitEffect{
		name: "webhook",
		run: func(ctx context.Context) error {
			if !app.HasWebhook() || s.webhooks == nil {
				return nil
			}
			_, err := s.webhooks.Deliver(ctx, *app.WebhookURL, app.WebhookAuthorization(), payload)
			return err
		},
	}
}

func invitationAttrs(inv *domain.Invitation) []any {
	return []any{"invitation_id", inv.ID, "app_id", inv.AppID}
}
