package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"referrski/internal/domain"
)

// Stripe subscription event types handled by ApplyStripeEvent.
const (
	StripeSubscriptionCreated = "customer.subscription.created"
	StripeSubscriptionUpdated = "customer.subscription.updated"
	StripeSubscriptionDeleted = "customer.subscription.deleted"
)

type subscriptionService struct {
	subscriptions domain.SubscriptionRepository
	catalog       domain.PlanCatalog
	logger        *slog.Logger
}

// NewSubscriptionService returns a SubscriptionService.
func NewSubscriptionService(subscriptions domain.SubscriptionRepository, catalog domain.PlanCatalog, logger *slog.Logger) domain.SubscriptionService {
	return &subscriptionService{subscriptions: subscriptions, catalog: catalog, logger: logger}
}

func (s *subscriptionService) Plans() []*domain.Plan {
	return s.catalog.Active()
}

// ApplyStripeEvent upserts the owner's subscription row from a subscription event.
// The plan comes from metadata.planId, falling back to the price id.
func (s *subscriptionService) ApplyStripeEvent(ctx context.Context, ev domain.StripeSubscriptionEvent) error {
	switch ev.Type {
	case StripeSubscriptionCreated, StripeSubscriptionUpdated, StripeSubscriptionDeleted:
	default:
		s.logger.DebugContext(ctx, "ignoring stripe event", "type", ev.Type)
		return nil
	}
	if strings.TrimSpace(ev.UserID) == "" {
		return domain.NewValidationError("metadata.userId", "subscription has no userId metadata")
	}

	planID := ev.PlanID
	if planID == "" && ev.PriceID != "" {
		if p, ok := s.catalog.ByStripePriceID(ev.PriceID); ok {
			planID = p.ID
		}
	}
	if _, ok := s.catalog.Get(planID); !ok {
		return fmt.Errorf("%w: subscription %s references unknown plan %q", domain.ErrPlanUnavailable, ev.SubscriptionID, planID)
	}

	status := ev.Status
	if ev.Type == StripeSubscriptionDeleted {
		status = domain.SubscriptionCanceled
	}
	sub := &domain.Subscription{
		UserID:               ev.UserID,
		PlanID:               planID,
		Status:               status,
		StripeCustomerID:     ev.CustomerID,
		StripeSubscriptionID: ev.SubscriptionID,
		CurrentPeriodEnd:     ev.CurrentPeriodEnd,
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	s.logger.InfoContext(ctx, "subscription synced", "user_id", sub.UserID, "plan_id", sub.PlanID, "status", sub.Status)
	return nil
}
