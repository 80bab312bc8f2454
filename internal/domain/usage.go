package domain

import (
	"context"
	"time"
)

// Usage is an owner's lifetime invitation counter.
type Usage struct {
	UserID       string
	TotalInvites int64
	LastUpdated  time.Time
}

// UsageRepository stores the per-owner counter.
type UsageRepository interface {
	// Get returns a zero Usage, not ErrNotFound, for owners with no row yet.
	Get(ctx context.Context, userID string) (*Usage, error)
	// Increment atomically adds one and returns the new total.
	Increment(ctx context.Context, userID string) (int64, error)
	Set(ctx context.Context, userID string, total int64) error
}

// UsageSummary is the dashboard view of an owner's quota.
// swagger:model UsageSummary
type UsageSummary struct {
	TotalInvites     int64      `json:"totalInvites"`
	Limit            int64      `json:"limit"`
	RemainingInvites int64      `json:"remainingInvites"`
	PlanID           string     `json:"planId"`
	LastUpdated      *time.Time `json:"lastUpdated"`
}

// ReconcileResult reports one owner's counter correction.
type ReconcileResult struct {
	UserID   string
	Previous int64
	Live     int64
}

// UsageService exposes quota usage and repairs counter drift.
type UsageService interface {
	Summary(ctx context.Context, ownerID string) (*UsageSummary, error)
	Reconcile(ctx context.Context) ([]ReconcileResult, error)
}
