package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"referrski/internal/domain"
	"referrski/internal/metrics"
)

type planResolver struct {
	subscriptions domain.SubscriptionRepository
	catalog       domain.PlanCatalog
}

// NewPlanResolver returns a PlanResolver backed by stored subscriptions.
// A nil subscription repository means no billing provider is configured and every owner is on the free plan.
func NewPlanResolver(subscriptions domain.SubscriptionRepository, catalog domain.PlanCatalog) domain.PlanResolver {
	return &planResolver{subscriptions: subscriptions, catalog: catalog}
}

func (r *planResolver) Resolve(ctx context.Context, ownerID string) (*domain.Plan, error) {
	planID := domain.FreePlanID
	if r.subscriptions != nil {
		sub, err := r.subscriptions.GetByUserID(ctx, ownerID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("%w: get subscription: %v", domain.ErrPlanUnavailable, err)
		case sub.Grants():
			planID = sub.PlanID
		}
	}
	plan, ok := r.catalog.Get(planID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown plan %q", domain.ErrPlanUnavailable, planID)
	}
	return plan, nil
}

type quotaEnforcer struct {
	resolver domain.PlanResolver
	failOpen bool
	logger   *slog.Logger
}

// NewQuotaEnforcer returns a QuotaEnforcer. With failOpen set, plan resolution
// failures allow creation; otherwise they deny it.
func NewQuotaEnforcer(resolver domain.PlanResolver, failOpen bool, logger *slog.Logger) domain.QuotaEnforcer {
	return &quotaEnforcer{resolver: resolver, failOpen: failOpen, logger: logger}
}

// CanCreate allows creation while currentCount is strictly below the plan's invite limit.
func (q *quotaEnforcer) CanCreate(ctx context.Context, ownerID string, currentCount int64) (bool, error) {
	plan, err := q.resolver.Resolve(ctx, ownerID)
	if err != nil {
		if q.failOpen {
			q.logger.WarnContext(ctx, "plan resolution failed, allowing create (fail-open)", "owner_id", ownerID, "err", err)
			return true, nil
		}
		return false, err
	}
	if currentCount < plan.InviteLimit {
		return true, nil
	}
	metrics.QuotaDenials.Inc()
	return false, nil
}

func (q *quotaEnforcer) Limit(ctx context.Context, ownerID string) (int64, error) {
	plan, err := q.resolver.Resolve(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	return plan.InviteLimit, nil
}
