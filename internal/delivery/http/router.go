package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"referrski/internal/delivery/http/controllers"
	"referrski/internal/delivery/http/middleware"
	"referrski/internal/domain"
)

// RouterDeps carries everything NewRouter wires into routes.
type RouterDeps struct {
	Logger          *slog.Logger
	Verifier        domain.TokenVerifier
	Apps            domain.AppRepository
	EraseLimiter    domain.RateLimiter
	EraseWindow     time.Duration
	LimiterFailOpen bool
	CORSOrigins     []string

	// ServeMetrics mounts /metrics on the API mux when no separate metrics listener runs.
	ServeMetrics bool

	AppController        *controllers.AppController
	InvitationController *controllers.InvitationController
	AccountController    *controllers.AccountController
	BillingController    *controllers.BillingController
	HealthController     *controllers.HealthController
}

// NewRouter initializes the HTTP router with all application routes
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(d.Verifier, d.Logger)
	appAccess := middleware.RequireAppAccess(d.Apps, d.Verifier, d.Logger)
	eraseLimit := middleware.RateLimit(d.EraseLimiter, d.EraseWindow, middleware.UserKey("erase_inviter"), d.LimiterFailOpen, d.Logger)

	apps := d.AppController
	mux.HandleFunc("POST /apps", auth(apps.CreateApp))
	mux.HandleFunc("GET /apps", auth(apps.ListApps))
	mux.HandleFunc("GET /apps/{id}", auth(apps.GetApp))
	mux.HandleFunc("PATCH /apps/{id}", auth(apps.UpdateApp))
	mux.HandleFunc("DELETE /apps/{id}", auth(apps.DeleteApp))
	mux.HandleFunc("GET /apps/{id}/stats", auth(apps.GetAppStats))
	mux.HandleFunc("GET /apps/{id}/metrics", auth(apps.GetAppMetrics))
	mux.HandleFunc("POST /apps/{id}/webhooks/test", auth(apps.TestWebhook))

	// Invitations: create, verify and validate-signup also accept the app secret.
	inv := d.InvitationController
	mux.HandleFunc("GET /apps/{id}/invitations", auth(inv.ListInvitations))
	mux.HandleFunc("POST /apps/{id}/invitations", appAccess(inv.CreateInvitation))
	mux.HandleFunc("POST /apps/{id}/invitations/verify", appAccess(inv.VerifyInvitation))
	mux.HandleFunc("POST /apps/{id}/invitations/validate-signup", appAccess(inv.ValidateSignup))
	mux.HandleFunc("DELETE /apps/{id}/invitations/{invitationId}", auth(inv.DeleteInvitation))
	mux.HandleFunc("DELETE /apps/{id}/inviters/{inviterId}", auth(inv.DeleteInviterInvitations))
	mux.HandleFunc("DELETE /admin/inviters/{inviterId}", auth(eraseLimit(inv.EraseInviter)))

	// Public accept page
	mux.HandleFunc("GET /invitations/{invitationId}", inv.GetPublicInvitation)
	mux.HandleFunc("POST /invitations/{invitationId}/verify", inv.AcceptInvitation)

	// Account and billing
	mux.HandleFunc("GET /invite-usage", auth(d.AccountController.GetInviteUsage))
	mux.HandleFunc("GET /plans", d.AccountController.ListPlans)
	mux.HandleFunc("POST /billing/stripe/webhook", d.BillingController.StripeWebhook)

	mux.HandleFunc("GET /healthz", d.HealthController.Health)
	if d.ServeMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return middleware.LoggingMiddleware(d.Logger, middleware.CORS(d.CORSOrigins, mux))
}
