package services

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"referrski/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func invAt(created time.Time, completed, signedUp bool) *domain.Invitation {
	inv := &domain.Invitation{CreatedAt: created, Status: domain.InvitationPending}
	if completed {
		t := created.Add(time.Hour)
		inv.Status = domain.InvitationCompleted
		inv.CompletedAt = &t
	}
	if signedUp {
		t := created.Add(2 * time.Hour)
		inv.SignedUpAt = &t
	}
	return inv
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), WindowStart(now, 1))
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), WindowStart(now, 7))
	assert.Equal(t, time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC), WindowStart(now, 30))
}

func TestFunnelFromCounts(t *testing.T) {
	tests := []struct {
		name   string
		counts domain.FunnelCounts
		want   domain.FunnelMetrics
	}{
		{
			name:   "empty",
			counts: domain.FunnelCounts{},
			want:   domain.FunnelMetrics{},
		},
		{
			name:   "thirds round to two decimals",
			counts: domain.FunnelCounts{Total: 3, Accepted: 1, SignedUp: 1},
			want: domain.FunnelMetrics{
				TotalInvitations: 3, InvitationsAccepted: 1, InvitationsSignedUp: 1,
				AcceptanceRate: 33.33, SignupRate: 100, ConversionRate: 33.33,
			},
		},
		{
			name:   "nothing accepted",
			counts: domain.FunnelCounts{Total: 4},
			want:   domain.FunnelMetrics{TotalInvitations: 4},
		},
		{
			name:   "two thirds",
			counts: domain.FunnelCounts{Total: 3, Accepted: 2, SignedUp: 1},
			want: domain.FunnelMetrics{
				TotalInvitations: 3, InvitationsAccepted: 2, InvitationsSignedUp: 1,
				AcceptanceRate: 66.67, SignupRate: 50, ConversionRate: 33.33,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FunnelFromCounts(tt.counts))
		})
	}
}

func TestComputeMetrics_Buckets(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	invs := []*domain.Invitation{
		invAt(time.Date(2025, 3, 10, 1, 0, 0, 0, time.UTC), true, true),
		invAt(time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC), false, false),
		invAt(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), true, false),
		invAt(time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC), true, true), // before window
	}

	period, daily := ComputeMetrics(invs, now, 3)
	require.Len(t, daily, 3)
	assert.Equal(t, "2025-03-08", daily[0].Date)
	assert.Equal(t, "2025-03-10", daily[2].Date)
	assert.Equal(t, int64(1), daily[0].TotalInvitations)
	assert.Zero(t, daily[1].TotalInvitations)
	assert.Equal(t, int64(2), daily[2].TotalInvitations)
	assert.Equal(t, 50.0, daily[2].AcceptanceRate)

	assert.Equal(t, 3, period.Days)
	assert.Equal(t, int64(3), period.TotalInvitations)
	assert.Equal(t, int64(2), period.InvitationsAccepted)
	assert.Equal(t, int64(1), period.InvitationsSignedUp)
	assert.Equal(t, 66.67, period.AcceptanceRate)
}

func TestComputeMetrics_AggregationLaw(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	now := time.Date(2025, 6, 30, 15, 0, 0, 0, time.UTC)

	for round := 0; round < 50; round++ {
		days := 1 + rng.Intn(60)
		var invs []*domain.Invitation
		for i := rng.Intn(200); i > 0; i-- {
			created := now.Add(-time.Duration(rng.Int63n(int64(90 * 24 * time.Hour))))
			completed := rng.Intn(2) == 0
			invs = append(invs, invAt(created, completed, completed && rng.Intn(2) == 0))
		}

		period, daily := ComputeMetrics(invs, now, days)
		require.Len(t, daily, days)

		var sum domain.FunnelCounts
		for _, d := range daily {
			sum.Total += d.TotalInvitations
			sum.Accepted += d.InvitationsAccepted
			sum.SignedUp += d.InvitationsSignedUp
		}
		assert.Equal(t, period.TotalInvitations, sum.Total)
		assert.Equal(t, period.InvitationsAccepted, sum.Accepted)
		assert.Equal(t, period.InvitationsSignedUp, sum.SignedUp)

		if period.InvitationsAccepted > 0 {
			want := period.AcceptanceRate * period.SignupRate / 100
			assert.LessOrEqual(t, math.Abs(period.ConversionRate-want), 0.05,
				"conversion %v vs acceptance %v * signup %v", period.ConversionRate, period.AcceptanceRate, period.SignupRate)
		}
	}
}

func TestMetricsService_AppMetrics(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, 100)
	h.create(t, "alice", "b1")
	h.create(t, "alice", "b2")
	_, err := h.svc.Verify(ctx, domain.AppScope(appID), appID, domain.VerifyInvitationInput{InviteeIdentifier: "b1"})
	require.NoError(t, err)

	svc := NewMetricsService(h.apps, h.invitations, time.Second).(*metricsService)
	svc.now = func() time.Time { return time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC) }

	m, err := svc.AppMetrics(ctx, ownerID, appID, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.AppRef{ID: appID, Name: "Acme"}, m.App)
	assert.Equal(t, int64(2), m.Overall.TotalInvitations)
	assert.Equal(t, 50.0, m.Overall.AcceptanceRate)
	assert.Equal(t, int64(2), m.Period.TotalInvitations)
	require.Len(t, m.DailyBreakdown, 7)
	assert.Equal(t, "2025-03-01", m.DailyBreakdown[5].Date)
	assert.Equal(t, int64(2), m.DailyBreakdown[5].TotalInvitations)

	stats, err := svc.AppStats(ctx, ownerID, appID)
	require.NoError(t, err)
	assert.Equal(t, &domain.AppStats{UniqueInvites: 2, CompletedInvites: 1}, stats)
}

func TestMetricsService_AppMetrics_Errors(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, 100)
	svc := NewMetricsService(h.apps, h.invitations, time.Second)

	for _, period := range []int{0, -1, MaxMetricsPeriod + 1} {
		_, err := svc.AppMetrics(ctx, ownerID, appID, period)
		require.ErrorIs(t, err, domain.ErrInvalidInput, "period %d", period)
	}
	_, err := svc.AppMetrics(ctx, "user-2", appID, 30)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.AppStats(ctx, "user-2", appID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
