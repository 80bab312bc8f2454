package domain

import (
	"context"
	"time"
)

// FreePlanID is the plan every owner falls back to without an active subscription.
const FreePlanID = "free"

// Plan is one entry of the subscription catalog.
// swagger:model Plan
type Plan struct {
	ID                   string   `json:"id" toml:"id"`
	Name                 string   `json:"name" toml:"name"`
	Description          string   `json:"description" toml:"description"`
	InviteLimit          int64    `json:"inviteLimit" toml:"invite_limit"`
	PriceMonthly         int64    `json:"priceMonthly" toml:"price_monthly"`
	PriceYearly          int64    `json:"priceYearly" toml:"price_yearly"`
	StripePriceIDMonthly string   `json:"stripePriceIdMonthly,omitempty" toml:"stripe_price_id_monthly"`
	StripePriceIDYearly  string   `json:"stripePriceIdYearly,omitempty" toml:"stripe_price_id_yearly"`
	Features             []string `json:"features" toml:"features"`
	Active               bool     `json:"isActive" toml:"active"`
}

// PlanCatalog is the read-only set of plans.
type PlanCatalog interface {
	Get(id string) (*Plan, bool)
	ByStripePriceID(priceID string) (*Plan, bool)
	Active() []*Plan
}

// Subscription statuses that grant the subscribed plan.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionCanceled = "canceled"
)

// Subscription is an owner's billing state, synced from the payments provider.
type Subscription struct {
	UserID               string
	PlanID               string
	Status               string
	StripeCustomerID     string
	StripeSubscriptionID string
	CurrentPeriodEnd     *time.Time
	UpdatedAt            time.Time
}

// Grants reports whether the subscription entitles the owner to its plan.
func (s *Subscription) Grants() bool {
	return s.Status == SubscriptionActive || s.Status == SubscriptionTrialing
}

// SubscriptionRepository stores one subscription row per owner.
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
}

// PlanResolver resolves the plan currently in force for an owner.
type PlanResolver interface {
	Resolve(ctx context.Context, ownerID string) (*Plan, error)
}

// QuotaEnforcer decides whether an owner with currentCount invitations may create another.
type QuotaEnforcer interface {
	CanCreate(ctx context.Context, ownerID string, currentCount int64) (bool, error)
	Limit(ctx context.Context, ownerID string) (int64, error)
}

// StripeSubscriptionEvent is the provider-neutral view of a subscription webhook.
type StripeSubscriptionEvent struct {
	Type             string
	SubscriptionID   string
	CustomerID       string
	Status           string
	UserID           string
	PlanID           string
	PriceID          string
	CurrentPeriodEnd *time.Time
}

// SubscriptionService applies payments-provider events and answers plan queries.
type SubscriptionService interface {
	Plans() []*Plan
	ApplyStripeEvent(ctx context.Context, ev StripeSubscriptionEvent) error
}
