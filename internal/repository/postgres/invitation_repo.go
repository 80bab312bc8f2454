package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"referrski/internal/domain"
)

type invitationRepository struct {
	DB *sql.DB
}

func NewInvitationRepository(db *sql.DB) domain.InvitationRepository {
	return &invitationRepository{DB: db}
}

const invitationColumns = `id, app_id, inviter_id, invitee_identifier, status, metadata, created_at, updated_at, completed_at, signed_up_at, signed_up_user_id`

func scanInvitation(s rowScanner) (*domain.Invitation, error) {
	inv := &domain.Invitation{}
	var status string
	var completedAt, signedUpAt sql.NullTime
	var signedUpUserID sql.NullString
	if err := s.Scan(&inv.ID, &inv.AppID, &inv.InviterID, &inv.InviteeIdentifier, &status, &inv.Metadata,
		&inv.CreatedAt, &inv.UpdatedAt, &completedAt, &signedUpAt, &signedUpUserID); err != nil {
		return nil, err
	}
	inv.Status = domain.InvitationStatus(status)
	if completedAt.Valid {
		inv.CompletedAt = &completedAt.Time
	}
	if signedUpAt.Valid {
		inv.SignedUpAt = &signedUpAt.Time
	}
	inv.SignedUpUserID = nullStringPtr(signedUpUserID)
	return inv, nil
}

// notFound maps "no row" and malformed uuid input to domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" {
		return domain.ErrNotFound
	}
	return err
}

func (r *invitationRepository) queryOne(ctx context.Context, query string, args ...any) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.DB.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

func (r *invitationRepository) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Invitation, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := make([]*domain.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, inv)
	}
	return list, rows.Err()
}

func (r *invitationRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	query := `
		INSERT INTO invitations (app_id, inviter_id, invitee_identifier, status, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.DB.QueryRowContext(ctx, query, inv.AppID, inv.InviterID, inv.InviteeIdentifier, string(inv.Status), inv.Metadata).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" {
		return domain.ErrNotFound
	}
	return err
}

func (r *invitationRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.queryOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

func (r *invitationRepository) ListByAppID(ctx context.Context, appID string, params domain.PaginationParams) ([]*domain.Invitation, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM invitations WHERE app_id = $1`, appID).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE app_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	limit := params.Limit()
	if limit < 0 {
		limit = total
	}
	list, err := r.queryMany(ctx, query, appID, limit, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *invitationRepository) ListCreatedSince(ctx context.Context, appID string, since time.Time) ([]*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE app_id = $1 AND created_at >= $2
		ORDER BY created_at
	`
	return r.queryMany(ctx, query, appID, since)
}

// FindPending returns the oldest pending invitation for the invitee, optionally pinned to invitationID.
func (r *invitationRepository) FindPending(ctx context.Context, appID, inviteeIdentifier, invitationID string) (*domain.Invitation, error) {
	if invitationID != "" {
		query := `
			SELECT ` + invitationColumns + `
			FROM invitations
			WHERE app_id = $1 AND invitee_identifier = $2 AND id = $3 AND status = 'pending'
		`
		return r.queryOne(ctx, query, appID, inviteeIdentifier, invitationID)
	}
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE app_id = $1 AND invitee_identifier = $2 AND status = 'pending'
		ORDER BY created_at, id
		LIMIT 1
	`
	return r.queryOne(ctx, query, appID, inviteeIdentifier)
}

func (r *invitationRepository) FindCompletedNotSignedUp(ctx context.Context, appID, inviteeIdentifier string) (*domain.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations
		WHERE app_id = $1 AND invitee_identifier = $2 AND status = 'completed' AND signed_up_at IS NULL
		ORDER BY completed_at, id
		LIMIT 1
	`
	return r.queryOne(ctx, query, appID, inviteeIdentifier)
}

// MarkCompleted moves a pending invitation to completed. It returns ErrNotFound when the row is no longer pending.
func (r *invitationRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (*domain.Invitation, error) {
	query := `
		UPDATE invitations
		SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + invitationColumns
	return r.queryOne(ctx, query, id, at)
}

// MarkSignedUp stamps signup on a completed invitation exactly once.
func (r *invitationRepository) MarkSignedUp(ctx context.Context, id, signedUpUserID string, at time.Time) (*domain.Invitation, error) {
	query := `
		UPDATE invitations
		SET signed_up_at = $2, signed_up_user_id = $3, updated_at = $2
		WHERE id = $1 AND status = 'completed' AND signed_up_at IS NULL
		RETURNING ` + invitationColumns
	return r.queryOne(ctx, query, id, at, signedUpUserID)
}

func (r *invitationRepository) Delete(ctx context.Context, appID, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM invitations WHERE app_id = $1 AND id = $2`, appID, id)
	if err != nil {
		return notFound(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *invitationRepository) DeleteByInviter(ctx context.Context, appID, inviterID string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM invitations WHERE app_id = $1 AND inviter_id = $2`, appID, inviterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *invitationRepository) DeleteByInviterInApps(ctx context.Context, appIDs []string, inviterID string) (int64, error) {
	if len(appIDs) == 0 {
		return 0, nil
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM invitations WHERE app_id = ANY($1) AND inviter_id = $2`, pq.Array(appIDs), inviterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *invitationRepository) ExistsForInviterInApps(ctx context.Context, appIDs []string, inviterID string) (bool, error) {
	if len(appIDs) == 0 {
		return false, nil
	}
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invitations WHERE app_id = ANY($1) AND inviter_id = $2)`,
		pq.Array(appIDs), inviterID,
	).Scan(&exists)
	return exists, err
}

func (r *invitationRepository) CountFunnel(ctx context.Context, appID string) (domain.FunnelCounts, error) {
	var c domain.FunnelCounts
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE completed_at IS NOT NULL),
		       COUNT(*) FILTER (WHERE signed_up_at IS NOT NULL)
		FROM invitations
		WHERE app_id = $1
	`, appID).Scan(&c.Total, &c.Accepted, &c.SignedUp)
	return c, err
}

func (r *invitationRepository) CountByOwnerID(ctx context.Context, ownerID string) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM invitations i
		JOIN apps a ON a.id = i.app_id
		WHERE a.user_id = $1
	`, ownerID).Scan(&n)
	return n, err
}
