package domain

import "context"

// FunnelCounts are raw invitation counts for one app or window.
type FunnelCounts struct {
	Total    int64
	Accepted int64
	SignedUp int64
}

// FunnelMetrics are counts plus percentage rates rounded to two decimals.
// swagger:model FunnelMetrics
type FunnelMetrics struct {
	TotalInvitations    int64   `json:"total_invitations"`
	InvitationsAccepted int64   `json:"invitations_accepted"`
	InvitationsSignedUp int64   `json:"invitations_signed_up"`
	AcceptanceRate      float64 `json:"acceptance_rate"`
	SignupRate          float64 `json:"signup_rate"`
	ConversionRate      float64 `json:"conversion_rate"`
}

// DailyMetrics is one UTC day of the breakdown.
// swagger:model DailyMetrics
type DailyMetrics struct {
	Date string `json:"date"`
	FunnelMetrics
}

// PeriodMetrics is the funnel over the trailing window.
// swagger:model PeriodMetrics
type PeriodMetrics struct {
	Days int `json:"days"`
	FunnelMetrics
}

// AppRef is the short app reference embedded in metrics.
type AppRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AppMetrics is the response of the metrics endpoint.
// swagger:model AppMetrics
type AppMetrics struct {
	App            AppRef         `json:"app"`
	Overall        FunnelMetrics  `json:"overall"`
	Period         PeriodMetrics  `json:"period"`
	DailyBreakdown []DailyMetrics `json:"daily_breakdown"`
}

// AppStats is the response of the stats endpoint.
// swagger:model AppStats
type AppStats struct {
	UniqueInvites    int64 `json:"uniqueInvites"`
	CompletedInvites int64 `json:"completedInvites"`
}

// MetricsService aggregates read-only invitation analytics.
type MetricsService interface {
	AppMetrics(ctx context.Context, ownerID, appID string, periodDays int) (*AppMetrics, error)
	AppStats(ctx context.Context, ownerID, appID string) (*AppStats, error)
}
