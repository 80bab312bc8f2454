package services

import (
	"context"
	"testing"
	"time"

	"referrski/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageService_Summary(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, 100)
	svc := NewUsageService(h.apps, h.invitations, h.usage, NewPlanResolver(h.subs, h.catalog), time.Second, testLogger)

	s, err := svc.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, &domain.UsageSummary{Limit: 100, RemainingInvites: 100, PlanID: "free"}, s)

	require.NoError(t, h.usage.Set(ctx, ownerID, 130))
	s, err = svc.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(130), s.TotalInvites)
	assert.Zero(t, s.RemainingInvites)
	assert.NotNil(t, s.LastUpdated)

	h.subs.byUser[ownerID] = &domain.Subscription{UserID: ownerID, PlanID: "pro", Status: domain.SubscriptionActive}
	s, err = svc.Summary(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, "pro", s.PlanID)
	assert.Equal(t, int64(10000-130), s.RemainingInvites)

	_, err = svc.Summary(ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestUsageService_Reconcile(t *testing.T) {
	ctx := context.Background()
	h := newEngineHarness(t, 100)
	h.apps.byID["app-9"] = &domain.App{ID: "app-9", Name: "Quiet", OwnerID: "user-9"}
	h.create(t, "alice", "b1")
	h.create(t, "alice", "b2")
	h.create(t, "alice", "b3")
	// Deleting rows leaves the counter at 3 while only 1 row remains.
	_, err := h.invitations.DeleteByInviter(ctx, appID, "alice")
	require.NoError(t, err)
	h.create(t, "carol", "b4")
	require.NoError(t, h.usage.Set(ctx, "user-9", 0))

	svc := NewUsageService(h.apps, h.invitations, h.usage, NewPlanResolver(nil, h.catalog), time.Second, testLogger)
	results, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ReconcileResult{{UserID: ownerID, Previous: 4, Live: 1}}, results)

	u, err := h.usage.Get(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.TotalInvites)

	results, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, results)
}
