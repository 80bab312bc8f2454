package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"referrski/internal/domain"
)

type usageService struct {
	apps           domain.AppRepository
	invitations    domain.InvitationRepository
	usage          domain.UsageRepository
	plans          domain.PlanResolver
	contextTimeout time.Duration
	logger         *slog.Logger
}

// NewUsageService returns a UsageService.
func NewUsageService(
	apps domain.AppRepository,
	invitations domain.InvitationRepository,
	usage domain.UsageRepository,
	plans domain.PlanResolver,
	timeout time.Duration,
	logger *slog.Logger,
) domain.UsageService {
	return &usageService{
		apps:           apps,
		invitations:    invitations,
		usage:          usage,
		plans:          plans,
		contextTimeout: timeout,
		logger:         logger,
	}
}

func (s *usageService) Summary(ctx context.Context, ownerID string) (*domain.UsageSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	u, err := s.usage.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get usage: %w", err)
	}
	plan, err := s.plans.Resolve(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan: %w", err)
	}
	summary := &domain.UsageSummary{
		TotalInvites:     u.TotalInvites,
		Limit:            plan.InviteLimit,
		RemainingInvites: max(plan.InviteLimit-u.TotalInvites, 0),
		PlanID:           plan.ID,
	}
	if !u.LastUpdated.IsZero() {
		t := u.LastUpdated
		summary.LastUpdated = &t
	}
	return summary, nil
}

// Reconcile resets every owner's counter to the number of invitation rows they
// currently own. Only owners whose counter drifted are written and reported.
func (s *usageService) Reconcile(ctx context.Context) ([]domain.ReconcileResult, error) {
	owners, err := s.apps.ListOwnerIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	var results []domain.ReconcileResult
	for _, owner := range owners {
		u, err := s.usage.Get(ctx, owner)
		if err != nil {
			return results, fmt.Errorf("get usage for %s: %w", owner, err)
		}
		live, err := s.invitations.CountByOwnerID(ctx, owner)
		if err != nil {
			return results, fmt.Errorf("count invitations for %s: %w", owner, err)
		}
		if live == u.TotalInvites {
			continue
		}
		if err := s.usage.Set(ctx, owner, live); err != nil {
			return results, fmt.Errorf("set usage for %s: %w", owner, err)
		}
		s.logger.InfoContext(ctx, "usage reconciled", "owner_id", owner, "previous", u.TotalInvites, "live", live)
		results = append(results, domain.ReconcileResult{UserID: owner, Previous: u.TotalInvites, Live: live})
	}
	return results, nil
}
