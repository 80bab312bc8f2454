package postgres

import (
	"context"
	"database/sql"
	"errors"

	"referrski/internal/domain"
)

type subscriptionRepository struct {
	DB *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) domain.SubscriptionRepository {
	return &subscriptionRepository{DB: db}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID string) (*domain.Subscription, error) {
	query := `
		SELECT user_id, plan_id, status, stripe_customer_id, stripe_subscription_id, current_period_end, updated_at
		FROM user_subscriptions
		WHERE user_id = $1
	`
	s := &domain.Subscription{}
	var customerID, subscriptionID sql.NullString
	var periodEnd sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(
		&s.UserID, &s.PlanID, &s.Status, &customerID, &subscriptionID, &periodEnd, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.StripeCustomerID = customerID.String
	s.StripeSubscriptionID = subscriptionID.String
	if periodEnd.Valid {
		s.CurrentPeriodEnd = &periodEnd.Time
	}
	return s, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, s *domain.Subscription) error {
	query := `
		INSERT INTO user_subscriptions (user_id, plan_id, status, stripe_customer_id, stripe_subscription_id, current_period_end, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, now())
		ON CONFLICT (user_id) DO UPDATE
		SET plan_id = EXCLUDED.plan_id,
		    status = EXCLUDED.status,
		    stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, user_subscriptions.stripe_customer_id),
		    stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, user_subscriptions.stripe_subscription_id),
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = now()
		RETURNING updated_at
	`
	return r.DB.QueryRowContext(ctx, query,
		s.UserID, s.PlanID, s.Status, s.StripeCustomerID, s.StripeSubscriptionID, s.CurrentPeriodEnd,
	).Scan(&s.UpdatedAt)
}
