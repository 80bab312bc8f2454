package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"referrski/config"
	_ "referrski/docs"
	"referrski/internal/adapters/auth"
	"referrski/internal/adapters/billing"
	"referrski/internal/adapters/email"
	"referrski/internal/adapters/ratelimit"
	"referrski/internal/adapters/webhook"
	httpdelivery "referrski/internal/delivery/http"
	"referrski/internal/delivery/http/controllers"
	"referrski/internal/domain"
	"referrski/internal/repository/postgres"
	"referrski/internal/services"
)

const shutdownTimeout = 15 * time.Second

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg, logger)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply pending migrations before serving")
}

// stores groups the Postgres-backed repositories.
type stores struct {
	apps          domain.AppRepository
	invitations   domain.InvitationRepository
	usage         domain.UsageRepository
	subscriptions domain.SubscriptionRepository
	audit         domain.AuditRepository
}

func newStores(db *sql.DB) stores {
	return stores{
		apps:          postgres.NewAppRepository(db),
		invitations:   postgres.NewInvitationRepository(db),
		usage:         postgres.NewUsageRepository(db),
		subscriptions: postgres.NewSubscriptionRepository(db),
		audit:         postgres.NewAuditRepository(db),
	}
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := postgres.Open(ctx, cfg.DBUrl)
	if err != nil {
		return err
	}
	defer db.Close()

	if serveMigrate {
		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "count", len(applied))
	}

	st := newStores(db)

	catalog, err := billing.LoadCatalog(cfg.Billing.PlansFile, cfg.StripePrices(), logger)
	if err != nil {
		return err
	}
	mailer, err := email.NewMailer(cfg.Mailer(), logger)
	if err != nil {
		return fmt.Errorf("init mailer: %w", err)
	}
	emailService := services.NewEmailService(mailer, email.NewTemplateRenderer(), logger)
	dispatcher := webhook.NewDispatcher(cfg.Webhook(), logger)

	resolver := services.NewPlanResolver(st.subscriptions, catalog)
	quota := services.NewQuotaEnforcer(resolver, cfg.Billing.QuotaFailOpen, logger)
	if cfg.Billing.QuotaFailOpen {
		logger.Warn("quota enforcement fails open on plan resolution errors")
	}

	appService := services.NewAppService(st.apps, dispatcher, cfg.RequestTimeout)
	invitationService := services.NewInvitationService(
		st.apps, st.invitations, st.usage, quota, dispatcher, emailService, st.audit,
		cfg.PublicAppURL, cfg.RequestTimeout, cfg.WebhookTimeout, logger,
	)
	metricsService := services.NewMetricsService(st.apps, st.invitations, cfg.RequestTimeout)
	usageService := services.NewUsageService(st.apps, st.invitations, st.usage, resolver, cfg.RequestTimeout, logger)
	subscriptionService := services.NewSubscriptionService(st.subscriptions, catalog, logger)

	// Erasure rate limiting is off unless Redis is configured.
	var eraseLimiter domain.RateLimiter
	if cfg.Redis.Addr != "" {
		client, err := ratelimit.NewClient(ctx, cfg.RateLimit())
		if err != nil {
			return err
		}
		defer client.Close()
		eraseLimiter = ratelimit.NewRedisLimiter(client, cfg.RateLimit())
	}

	router := httpdelivery.NewRouter(httpdelivery.RouterDeps{
		Logger:               logger,
		Verifier:             auth.NewJWTVerifier(cfg.TokenSecret(), cfg.JWTIssuer),
		Apps:                 st.apps,
		EraseLimiter:         eraseLimiter,
		EraseWindow:          cfg.Redis.Window,
		LimiterFailOpen:      cfg.Redis.FailOpen,
		CORSOrigins:          cfg.CORSOrigins,
		ServeMetrics:         cfg.MetricsAddr == "",
		AppController:        controllers.NewAppController(logger, appService, metricsService),
		InvitationController: controllers.NewInvitationController(logger, invitationService),
		AccountController:    controllers.NewAccountController(logger, usageService, subscriptionService),
		BillingController:    controllers.NewBillingController(logger, subscriptionService, cfg.Billing.StripeWebhookSecret),
		HealthController:     controllers.NewHealthController(logger, db),
	})

	g, gctx := errgroup.WithContext(ctx)

	servers := []*http.Server{{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr, "env", cfg.Environment)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	if cfg.ReconcileCron != "" {
		scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
		_, err := scheduler.AddFunc(cfg.ReconcileCron, func() {
			reconcileUsage(gctx, usageService, logger)
		})
		if err != nil {
			return fmt.Errorf("invalid USAGE_RECONCILE_CRON %q: %w", cfg.ReconcileCron, err)
		}
		scheduler.Start()
		logger.Info("usage reconciliation scheduled", "cron", cfg.ReconcileCron)
		g.Go(func() error {
			<-gctx.Done()
			<-scheduler.Stop().Done()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func reconcileUsage(ctx context.Context, usage domain.UsageService, logger *slog.Logger) {
	results, err := usage.Reconcile(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "usage reconciliation failed", "corrected", len(results), "error", err)
		return
	}
	logger.InfoContext(ctx, "usage reconciliation finished", "corrected", len(results))
}
