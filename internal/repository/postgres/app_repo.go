package postgres

import (
	"context"
	"database/sql"

	"referrski/internal/domain"
)

type appRepository struct {
	DB *sql.DB
}

func NewAppRepository(db *sql.DB) domain.AppRepository {
	return &appRepository{DB: db}
}

const appColumns = `id, name, user_id, webhook_url, auth_header, ios_app_url, android_app_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(s rowScanner) (*domain.App, error) {
	a := &domain.App{}
	var webhookURL, authHeader, iosURL, androidURL sql.NullString
	if err := s.Scan(&a.ID, &a.Name, &a.OwnerID, &webhookURL, &authHeader, &iosURL, &androidURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.WebhookURL = nullStringPtr(webhookURL)
	a.AuthHeader = nullStringPtr(authHeader)
	a.IOSAppURL = nullStringPtr(iosURL)
	a.AndroidAppURL = nullStringPtr(androidURL)
	return a, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func (r *appRepository) Create(ctx context.Context, a *domain.App) error {
	query := `
		INSERT INTO apps (name, user_id, webhook_url, auth_header, ios_app_url, android_app_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	return r.DB.QueryRowContext(ctx, query, a.Name, a.OwnerID, a.WebhookURL, a.AuthHeader, a.IOSAppURL, a.AndroidAppURL).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *appRepository) GetByID(ctx context.Context, id string) (*domain.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE id = $1`
	a, err := scanApp(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (r *appRepository) ListByOwnerID(ctx context.Context, ownerID string) ([]*domain.App, error) {
	query := `SELECT ` + appColumns + ` FROM apps WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	apps := make([]*domain.App, 0)
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (r *appRepository) ListOwnerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT user_id FROM apps
		UNION
		SELECT user_id FROM user_invite_usage
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *appRepository) Update(ctx context.Context, a *domain.App) error {
	query := `
		UPDATE apps
		SET name = $2, webhook_url = $3, auth_header = $4, ios_app_url = $5, android_app_url = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err := r.DB.QueryRowContext(ctx, query, a.ID, a.Name, a.WebhookURL, a.AuthHeader, a.IOSAppURL, a.AndroidAppURL).Scan(&a.UpdatedAt)
	if err != nil {
		return notFound(err)
	}
	return nil
}

func (r *appRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM apps WHERE id = $1`, id)
	if err != nil {
		return err
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
