package postgres

import (
	"context"
	"database/sql"
	"errors"

	"referrski/internal/domain"
)

type usageRepository struct {
	DB *sql.DB
}

func NewUsageRepository(db *sql.DB) domain.UsageRepository {
	return &usageRepository{DB: db}
}

func (r *usageRepository) Get(ctx context.Context, userID string) (*domain.Usage, error) {
	u := &domain.Usage{UserID: userID}
	err := r.DB.QueryRowContext(ctx,
		`SELECT total_invites, last_updated FROM user_invite_usage WHERE user_id = $1`, userID,
	).Scan(&u.TotalInvites, &u.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return u, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Increment adds one in a single statement so concurrent creates never lose an update.
func (r *usageRepository) Increment(ctx context.Context, userID string) (int64, error) {
	query := `
		INSERT INTO user_invite_usage (user_id, total_invites, last_updated)
		VALUES ($1, 1, now())
		ON CONFLICT (user_id) DO UPDATE
		SET total_invites = user_invite_usage.total_invites + 1, last_updated = now()
		RETURNING total_invites
	`
	var total int64
	err := r.DB.QueryRowContext(ctx, query, userID).Scan(&total)
	return total, err
}

func (r *usageRepository) Set(ctx context.Context, userID string, total int64) error {
	query := `
		INSERT INTO user_invite_usage (user_id, total_invites, last_updated)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE
		SET total_invites = EXCLUDED.total_invites, last_updated = now()
	`
	_, err := r.DB.ExecContext(ctx, query, userID, total)
	return err
}
