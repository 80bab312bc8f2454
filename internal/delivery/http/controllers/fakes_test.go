package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"referrski/internal/delivery/http/helpers"
	"referrski/internal/delivery/http/middleware"
	"referrski/internal/domain"

	"github.com/stretchr/testify/require"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

func strPtr(s string) *string { return &s }

// newRequest builds a request with path values and, when scope is set, an authenticated context.
func newRequest(method, target, body string, pathValues map[string]string, scope domain.Scope) *http.Request {
	var rdr io.Reader = http.NoBody
	if body != "" {
		rdr = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	switch {
	case scope.UserID != "":
		req = req.WithContext(middleware.SetPrincipal(req.Context(), &domain.Principal{UserID: scope.UserID}))
	case scope.AppID != "":
		req = req.WithContext(middleware.SetScope(req.Context(), scope))
	}
	return req
}

// decodeEnvelope decodes the response envelope and, when out is non-nil, its data.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, out any) helpers.APIResponse {
	t.Helper()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope), "response must be valid JSON envelope")
	if out != nil {
		raw, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return envelope
}

// fakeAppService implements domain.AppService.
type fakeAppService struct {
	app        *domain.App
	apps       []*domain.App
	err        error
	result     *domain.TestWebhookResult
	lastOwner  string
	lastAppID  string
	lastScope  domain.Scope
	lastInput  domain.AppInput
	lastTest   domain.TestWebhookInput
	deleteCall bool
}

func (f *fakeAppService) Create(_ context.Context, ownerID string, in domain.AppInput) (*domain.App, error) {
	f.lastOwner, f.lastInput = ownerID, in
	return f.app, f.err
}

func (f *fakeAppService) List(_ context.Context, ownerID string) ([]*domain.App, error) {
	f.lastOwner = ownerID
	return f.apps, f.err
}

func (f *fakeAppService) Get(_ context.Context, scope domain.Scope, appID string) (*domain.App, error) {
	f.lastScope, f.lastAppID = scope, appID
	return f.app, f.err
}

func (f *fakeAppService) Update(_ context.Context, ownerID, appID string, in domain.AppInput) (*domain.App, error) {
	f.lastOwner, f.lastAppID, f.lastInput = ownerID, appID, in
	return f.app, f.err
}

func (f *fakeAppService) Delete(_ context.Context, ownerID, appID string) error {
	f.lastOwner, f.lastAppID, f.deleteCall = ownerID, appID, true
	return f.err
}

func (f *fakeAppService) SendTestWebhook(_ context.Context, ownerID, appID string, in domain.TestWebhookInput) (*domain.TestWebhookResult, error) {
	f.lastOwner, f.lastAppID, f.lastTest = ownerID, appID, in
	return f.result, f.err
}

// fakeMetricsService implements domain.MetricsService.
type fakeMetricsService struct {
	metrics    *domain.AppMetrics
	stats      *domain.AppStats
	err        error
	lastPeriod int
}

func (f *fakeMetricsService) AppMetrics(_ context.Context, _, _ string, periodDays int) (*domain.AppMetrics, error) {
	f.lastPeriod = periodDays
	return f.metrics, f.err
}

func (f *fakeMetricsService) AppStats(_ context.Context, _, _ string) (*domain.AppStats, error) {
	return f.stats, f.err
}

// fakeInvitationService implements domain.InvitationService.
type fakeInvitationService struct {
	inv          *domain.Invitation
	public       *domain.PublicInvitation
	list         []*domain.Invitation
	total        int
	validated    bool
	deleted      int64
	err          error
	lastScope    domain.Scope
	lastAppID    string
	lastCreate   domain.CreateInvitationInput
	lastVerify   domain.VerifyInvitationInput
	lastParams   domain.PaginationParams
	lastID       string
	lastInviter  string
	lastOwner    string
	lastSignedUp string
}

func (f *fakeInvitationService) Create(_ context.Context, scope domain.Scope, appID string, in domain.CreateInvitationInput) (*domain.Invitation, error) {
	f.lastScope, f.lastAppID, f.lastCreate = scope, appID, in
	return f.inv, f.err
}

func (f *fakeInvitationService) Verify(_ context.Context, scope domain.Scope, appID string, in domain.VerifyInvitationInput) (*domain.Invitation, error) {
	f.lastScope, f.lastAppID, f.lastVerify = scope, appID, in
	return f.inv, f.err
}

func (f *fakeInvitationService) VerifyByID(_ context.Context, id string) (*domain.Invitation, error) {
	f.lastID = id
	return f.inv, f.err
}

func (f *fakeInvitationService) GetPublic(_ context.Context, id string) (*domain.PublicInvitation, error) {
	f.lastID = id
	return f.public, f.err
}

func (f *fakeInvitationService) ValidateSignup(_ context.Context, scope domain.Scope, appID, userID string) (*domain.Invitation, bool, error) {
	f.lastScope, f.lastAppID, f.lastSignedUp = scope, appID, userID
	return f.inv, f.validated, f.err
}

func (f *fakeInvitationService) List(_ context.Context, scope domain.Scope, appID string, params domain.PaginationParams) ([]*domain.Invitation, int, error) {
	f.lastScope, f.lastAppID, f.lastParams = scope, appID, params
	return f.list, f.total, f.err
}

func (f *fakeInvitationService) Delete(_ context.Context, scope domain.Scope, appID, id string) error {
	f.lastScope, f.lastAppID, f.lastID = scope, appID, id
	return f.err
}

func (f *fakeInvitationService) DeleteByInviter(_ context.Context, scope domain.Scope, appID, inviterID string) (int64, error) {
	f.lastScope, f.lastAppID, f.lastInviter = scope, appID, inviterID
	return f.deleted, f.err
}

func (f *fakeInvitationService) EraseInviter(_ context.Context, ownerID, inviterID string) (int64, error) {
	f.lastOwner, f.lastInviter = ownerID, inviterID
	return f.deleted, f.err
}

// fakeUsageService implements domain.UsageService.
type fakeUsageService struct {
	summary *domain.UsageSummary
	err     error
}

func (f *fakeUsageService) Summary(_ context.Context, _ string) (*domain.UsageSummary, error) {
	return f.summary, f.err
}

func (f *fakeUsageService) Reconcile(_ context.Context) ([]domain.ReconcileResult, error) {
	return nil, f.err
}

// fakeSubscriptionService implements domain.SubscriptionService.
type fakeSubscriptionService struct {
	plans  []*domain.Plan
	err    error
	events []domain.StripeSubscriptionEvent
}

func (f *fakeSubscriptionService) Plans() []*domain.Plan { return f.plans }

func (f *fakeSubscriptionService) ApplyStripeEvent(_ context.Context, ev domain.StripeSubscriptionEvent) error {
	f.events = append(f.events, ev)
	return f.err
}
