package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"referrski/internal/domain"
)

// Metrics period bounds, in days.
const (
	DefaultMetricsPeriod = 30
	MaxMetricsPeriod     = 365
)

type metricsService struct {
	apps           domain.AppRepository
	invitations    domain.InvitationRepository
	contextTimeout time.Duration
	now            func() time.Time
}

// NewMetricsService returns a read-only analytics service.
func NewMetricsService(apps domain.AppRepository, invitations domain.InvitationRepository, timeout time.Duration) domain.MetricsService {
	return &metricsService{
		apps:           apps,
		invitations:    invitations,
		contextTimeout: timeout,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *metricsService) AppMetrics(ctx context.Context, ownerID, appID string, periodDays int) (*domain.AppMetrics, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if periodDays < 1 || periodDays > MaxMetricsPeriod {
		return nil, domain.NewValidationError("period", fmt.Sprintf("must be between 1 and %d", MaxMetricsPeriod))
	}
	app, err := resolveApp(ctx, s.apps, domain.UserScope(ownerID), appID)
	if err != nil {
		return nil, err
	}
	overall, err := s.invitations.CountFunnel(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("count funnel: %w", err)
	}
	now := s.now()
	list, err := s.invitations.ListCreatedSince(ctx, app.ID, WindowStart(now, periodDays))
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	period, daily := ComputeMetrics(list, now, periodDays)
	return &domain.AppMetrics{
		App:            domain.AppRef{ID: app.ID, Name: app.Name},
		Overall:        FunnelFromCounts(overall),
		Period:         period,
		DailyBreakdown: daily,
	}, nil
}

func (s *metricsService) AppStats(ctx context.Context, ownerID, appID string) (*domain.AppStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	app, err := resolveApp(ctx, s.apps, domain.UserScope(ownerID), appID)
	if err != nil {
		return nil, err
	}
	c, err := s.invitations.CountFunnel(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("count funnel: %w", err)
	}
	return &domain.AppStats{UniqueInvites: c.Total, CompletedInvites: c.Accepted}, nil
}

// WindowStart is UTC midnight periodDays-1 days before now, so the window holds exactly periodDays buckets.
func WindowStart(now time.Time, periodDays int) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return today.AddDate(0, 0, -(periodDays - 1))
}

// ComputeMetrics buckets invitations by UTC creation day over the trailing window.
// Invitations created outside the window are ignored.
func ComputeMetrics(invitations []*domain.Invitation, now time.Time, periodDays int) (domain.PeriodMetrics, []domain.DailyMetrics) {
	start := WindowStart(now, periodDays)
	buckets := make([]domain.FunnelCounts, periodDays)
	var total domain.FunnelCounts
	for _, inv := range invitations {
		created := inv.CreatedAt.UTC()
		if created.Before(start) {
			continue
		}
		idx := int(created.Sub(start) / (24 * time.Hour))
		if idx >= periodDays {
			continue
		}
		b := &buckets[idx]
		b.Total++
		total.Total++
		if inv.CompletedAt != nil {
			b.Accepted++
			total.Accepted++
		}
		if inv.SignedUpAt != nil {
			b.SignedUp++
			total.SignedUp++
		}
	}
	daily := make([]domain.DailyMetrics, periodDays)
	for i := range buckets {
		daily[i] = domain.DailyMetrics{
			Date:          start.AddDate(0, 0, i).Format("2006-01-02"),
			FunnelMetrics: FunnelFromCounts(buckets[i]),
		}
	}
	return domain.PeriodMetrics{Days: periodDays, FunnelMetrics: FunnelFromCounts(total)}, daily
}

// FunnelFromCounts derives percentage rates; a zero denominator yields 0.
func FunnelFromCounts(c domain.FunnelCounts) domain.FunnelMetrics {
	return domain.FunnelMetrics{
		TotalInvitations:    c.Total,
		InvitationsAccepted: c.Accepted,
		InvitationsSignedUp: c.SignedUp,
		AcceptanceRate:      percent(c.Accepted, c.Total),
		SignupRate:          percent(c.SignedUp, c.Accepted),
		ConversionRate:      percent(c.SignedUp, c.Total),
	}
}

func percent(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	return math.Round(float64(num)/float64(den)*100*100) / 100
}
