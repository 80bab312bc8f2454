package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"referrski/internal/adapters/auth"
	"referrski/internal/adapters/billing"
	"referrski/internal/repository/postgres"
	"referrski/internal/services"
)

const commandTimeout = 5 * time.Minute

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		db, err := postgres.Open(ctx, cfg.DBUrl)
		if err != nil {
			return err
		}
		defer db.Close()

		applied, err := postgres.Migrate(ctx, db)
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
		}
		logger.Info("migrations complete", "applied", len(applied))
		return nil
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Invitation quota maintenance",
}

var usageReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reset every owner's invite counter to their live invitation count",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		db, err := postgres.Open(ctx, cfg.DBUrl)
		if err != nil {
			return err
		}
		defer db.Close()

		st := newStores(db)
		catalog, err := billing.LoadCatalog(cfg.Billing.PlansFile, cfg.StripePrices(), logger)
		if err != nil {
			return err
		}
		resolver := services.NewPlanResolver(st.subscriptions, catalog)
		usage := services.NewUsageService(st.apps, st.invitations, st.usage, resolver, commandTimeout, logger)

		results, err := usage.Reconcile(ctx)
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d -> %d\n", r.UserID, r.Previous, r.Live)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d owner(s) corrected\n", len(results))
		return nil
	},
}

var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a dashboard token for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := bootstrap()
		if err != nil {
			return err
		}
		if cfg.IsProduction() {
			return errors.New("token minting is disabled in production")
		}
		token, err := auth.NewJWTIssuer(cfg.TokenSecret(), cfg.JWTIssuer).Issue(tokenUserID, tokenEmail, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	usageCmd.AddCommand(usageReconcileCmd)

	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id placed in the sub claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("user")
}
