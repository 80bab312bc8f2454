package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"referrski/internal/domain"
)

type auditRepository struct {
	DB *sql.DB
}

func NewAuditRepository(db *sql.DB) domain.AuditRepository {
	return &auditRepository{DB: db}
}

func (r *auditRepository) Insert(ctx context.Context, e *domain.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("encode audit details: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO admin_logs (user_id, action, details, created_at) VALUES ($1, $2, $3, $4)`,
		e.UserID, e.Action, details, e.CreatedAt,
	)
	return err
}
