package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"referrski/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

// eventLog records store writes and side effects in the order they happen.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeAppRepo is an in-memory AppRepository.
type fakeAppRepo struct {
	byID   map[string]*domain.App
	nextID int
	err    error
}

func newFakeAppRepo(apps ...*domain.App) *fakeAppRepo {
	f := &fakeAppRepo{byID: make(map[string]*domain.App), nextID: 100}
	for _, a := range apps {
		f.byID[a.ID] = a
	}
	return f
}

func (f *fakeAppRepo) Create(_ context.Context, a *domain.App) error {
	if f.err != nil {
		return f.err
	}
	a.ID = fmt.Sprintf("app-%d", f.nextID)
	f.nextID++
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAppRepo) GetByID(_ context.Context, id string) (*domain.App, error) {
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAppRepo) ListByOwnerID(_ context.Context, ownerID string) ([]*domain.App, error) {
	var out []*domain.App
	for _, a := range f.byID {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeAppRepo) ListOwnerIDs(_ context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, a := range f.byID {
		if !seen[a.OwnerID] {
			seen[a.OwnerID] = true
			out = append(out, a.OwnerID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeAppRepo) Update(_ context.Context, a *domain.App) error {
	if _, ok := f.byID[a.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	f.byID[a.ID] = &cp
	return nil
}

func (f *fakeAppRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

// fakeInvitationRepo is an in-memory InvitationRepository with the same
// conditional-update semantics as the Postgres adapter.
type fakeInvitationRepo struct {
	mu        sync.Mutex
	byID      map[string]*domain.Invitation
	order     []string
	nextID    int
	clock     time.Time
	apps      *fakeAppRepo
	log       *eventLog
	createErr error
}

func newFakeInvitationRepo(apps *fakeAppRepo, log *eventLog) *fakeInvitationRepo {
	return &fakeInvitationRepo{
		byID:   make(map[string]*domain.Invitation),
		nextID: 1,
		clock:  time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		apps:   apps,
		log:    log,
	}
}

func (f *fakeInvitationRepo) Create(_ context.Context, inv *domain.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	inv.ID = fmt.Sprintf("inv-%d", f.nextID)
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	inv.CreatedAt = f.clock
	inv.UpdatedAt = f.clock
	cp := *inv
	f.byID[inv.ID] = &cp
	f.order = append(f.order, inv.ID)
	f.log.add("store:create:" + inv.ID)
	return nil
}

func (f *fakeInvitationRepo) get(id string) *domain.Invitation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.byID[id]; ok {
		cp := *inv
		return &cp
	}
	return nil
}

func (f *fakeInvitationRepo) GetByID(_ context.Context, id string) (*domain.Invitation, error) {
	if inv := f.get(id); inv != nil {
		return inv, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeInvitationRepo) filter(match func(*domain.Invitation) bool) []*domain.Invitation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Invitation
	for _, id := range f.order {
		inv, ok := f.byID[id]
		if ok && match(inv) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out
}

func (f *fakeInvitationRepo) ListByAppID(_ context.Context, appID string, params domain.PaginationParams) ([]*domain.Invitation, int, error) {
	all := f.filter(func(i *domain.Invitation) bool { return i.AppID == appID })
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	total := len(all)
	start := min(params.Offset(), total)
	end := total
	if params.Limit() > 0 {
		end = min(start+params.Limit(), total)
	}
	return all[start:end], total, nil
}

func (f *fakeInvitationRepo) ListCreatedSince(_ context.Context, appID string, since time.Time) ([]*domain.Invitation, error) {
	return f.filter(func(i *domain.Invitation) bool { return i.AppID == appID && !i.CreatedAt.Before(since) }), nil
}

func (f *fakeInvitationRepo) FindPending(_ context.Context, appID, invitee, invitationID string) (*domain.Invitation, error) {
	list := f.filter(func(i *domain.Invitation) bool {
		return i.AppID == appID && i.InviteeIdentifier == invitee && i.Status == domain.InvitationPending &&
			(invitationID == "" || i.ID == invitationID)
	})
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (f *fakeInvitationRepo) FindCompletedNotSignedUp(_ context.Context, appID, invitee string) (*domain.Invitation, error) {
	list := f.filter(func(i *domain.Invitation) bool {
		return i.AppID == appID && i.InviteeIdentifier == invitee && i.Status == domain.InvitationCompleted && i.SignedUpAt == nil
	})
	if len(list) == 0 {
		return nil, domain.ErrNotFound
	}
	return list[0], nil
}

func (f *fakeInvitationRepo) MarkCompleted(_ context.Context, id string, at time.Time) (*domain.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byID[id]
	if !ok || inv.Status != domain.InvitationPending {
		return nil, domain.ErrNotFound
	}
	inv.Status = domain.InvitationCompleted
	inv.CompletedAt = &at
	inv.UpdatedAt = at
	f.log.add("store:complete:" + id)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvitationRepo) MarkSignedUp(_ context.Context, id, userID string, at time.Time) (*domain.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.byID[id]
	if !ok || inv.Status != domain.InvitationCompleted || inv.SignedUpAt != nil {
		return nil, domain.ErrNotFound
	}
	inv.SignedUpAt = &at
	inv.SignedUpUserID = &userID
	inv.UpdatedAt = at
	f.log.add("store:signup:" + id)
	cp := *inv
	return &cp, nil
}

func (f *fakeInvitationRepo) deleteWhere(match func(*domain.Invitation) bool) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, inv := range f.byID {
		if match(inv) {
			delete(f.byID, id)
			n++
		}
	}
	return n
}

func (f *fakeInvitationRepo) Delete(_ context.Context, appID, id string) error {
	if f.deleteWhere(func(i *domain.Invitation) bool { return i.AppID == appID && i.ID == id }) == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (f *fakeInvitationRepo) DeleteByInviter(_ context.Context, appID, inviterID string) (int64, error) {
	return f.deleteWhere(func(i *domain.Invitation) bool { return i.AppID == appID && i.InviterID == inviterID }), nil
}

func (f *fakeInvitationRepo) DeleteByInviterInApps(_ context.Context, appIDs []string, inviterID string) (int64, error) {
	in := map[string]bool{}
	for _, id := range appIDs {
		in[id] = true
	}
	return f.deleteWhere(func(i *domain.Invitation) bool { return in[i.AppID] && i.InviterID == inviterID }), nil
}

func (f *fakeInvitationRepo) ExistsForInviterInApps(_ context.Context, appIDs []string, inviterID string) (bool, error) {
	in := map[string]bool{}
	for _, id := range appIDs {
		in[id] = true
	}
	return len(f.filter(func(i *domain.Invitation) bool { return in[i.AppID] && i.InviterID == inviterID })) > 0, nil
}

func (f *fakeInvitationRepo) CountFunnel(_ context.Context, appID string) (domain.FunnelCounts, error) {
	var c domain.FunnelCounts
	for _, i := range f.filter(func(i *domain.Invitation) bool { return i.AppID == appID }) {
		c.Total++
		if i.CompletedAt != nil {
			c.Accepted++
		}
		if i.SignedUpAt != nil {
			c.SignedUp++
		}
	}
	return c, nil
}

func (f *fakeInvitationRepo) CountByOwnerID(_ context.Context, ownerID string) (int64, error) {
	list := f.filter(func(i *domain.Invitation) bool {
		a, ok := f.apps.byID[i.AppID]
		return ok && a.OwnerID == ownerID
	})
	return int64(len(list)), nil
}

// fakeUsageRepo is an in-memory UsageRepository.
type fakeUsageRepo struct {
	mu           sync.Mutex
	totals       map[string]int64
	incrementErr error
	log          *eventLog
}

func newFakeUsageRepo(log *eventLog) *fakeUsageRepo {
	return &fakeUsageRepo{totals: make(map[string]int64), log: log}
}

func (f *fakeUsageRepo) Get(_ context.Context, userID string) (*domain.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &domain.Usage{UserID: userID, TotalInvites: f.totals[userID]}
	if _, ok := f.totals[userID]; ok {
		u.LastUpdated = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	}
	return u, nil
}

func (f *fakeUsageRepo) Increment(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.incrementErr != nil {
		return 0, f.incrementErr
	}
	f.totals[userID]++
	f.log.add("usage:increment")
	return f.totals[userID], nil
}

func (f *fakeUsageRepo) Set(_ context.Context, userID string, total int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.totals[userID] = total
	return nil
}

// fakeSubscriptionRepo is an in-memory SubscriptionRepository.
type fakeSubscriptionRepo struct {
	byUser map[string]*domain.Subscription
	err    error
}

func newFakeSubscriptionRepo() *fakeSubscriptionRepo {
	return &fakeSubscriptionRepo{byUser: make(map[string]*domain.Subscription)}
}

func (f *fakeSubscriptionRepo) GetByUserID(_ context.Context, userID string) (*domain.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.byUser[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubscriptionRepo) Upsert(_ context.Context, s *domain.Subscription) error {
	if f.err != nil {
		return f.err
	}
	cp := *s
	f.byUser[s.UserID] = &cp
	return nil
}

// fakeCatalog is a fixed PlanCatalog.
type fakeCatalog map[string]*domain.Plan

func newFakeCatalog(freeLimit int64) fakeCatalog {
	return fakeCatalog{
		"free":     {ID: "free", Name: "Free", InviteLimit: freeLimit, Active: true},
		"pro":      {ID: "pro", Name: "Pro", InviteLimit: 10000, StripePriceIDMonthly: "price_pro_m", Active: true},
		"business": {ID: "business", Name: "Business", InviteLimit: 100000, Active: true},
	}
}

func (c fakeCatalog) Get(id string) (*domain.Plan, bool) {
	p, ok := c[id]
	return p, ok
}

func (c fakeCatalog) ByStripePriceID(priceID string) (*domain.Plan, bool) {
	for _, p := range c {
		if p.StripePriceIDMonthly == priceID || p.StripePriceIDYearly == priceID {
			return p, true
		}
	}
	return nil, false
}

func (c fakeCatalog) Active() []*domain.Plan {
	var out []*domain.Plan
	for _, p := range c {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InviteLimit < out[j].InviteLimit })
	return out
}

// fakeDispatcher records webhook deliveries.
type fakeDispatcher struct {
	mu       sync.Mutex
	payloads []domain.WebhookPayload
	urls     []string
	auths    []string
	resp     *domain.WebhookResponse
	err      error
	log      *eventLog
}

func (f *fakeDispatcher) Deliver(ctx context.Context, url, authHeader string, payload domain.WebhookPayload) (*domain.WebhookResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	f.payloads = append(f.payloads, payload)
	f.urls = append(f.urls, url)
	f.auths = append(f.auths, authHeader)
	f.log.add("webhook:" + string(payload.Type))
	return f.resp, f.err
}

func (f *fakeDispatcher) types() []domain.WebhookEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WebhookEventType, 0, len(f.payloads))
	for _, p := range f.payloads {
		out = append(out, p.Type)
	}
	return out
}

// fakeEmailService records invitation emails.
type fakeEmailService struct {
	sent []*domain.InvitationEmailData
	spec []domain.EmailSpec
	err  error
	log  *eventLog
}

func (f *fakeEmailService) SendInvitation(_ context.Context, data *domain.InvitationEmailData, spec domain.EmailSpec) error {
	f.log.add("email")
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	f.spec = append(f.spec, spec)
	return nil
}

// fakeAuditRepo records audit entries.
type fakeAuditRepo struct {
	entries []*domain.AuditEntry
	err     error
}

func (f *fakeAuditRepo) Insert(_ context.Context, e *domain.AuditEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}
