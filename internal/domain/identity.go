package domain

import (
	"context"
	"time"
)

// Principal is an authenticated dashboard user.
type Principal struct {
	UserID string
	Email  string
}

// TokenVerifier validates a dashboard bearer token.
type TokenVerifier interface {
	Verify(token string) (*Principal, error)
}

// TokenIssuer mints dashboard tokens. Used for local development only.
type TokenIssuer interface {
	Issue(userID, email string, expiry time.Duration) (string, error)
}

// RateLimiter answers whether key may perform one more action in the current window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AuditEntry records an administrative erasure.
type AuditEntry struct {
	UserID    string
	Action    string
	Details   map[string]any
	CreatedAt time.Time
}

// AuditRepository persists admin audit entries.
type AuditRepository interface {
	Insert(ctx context.Context, entry *AuditEntry) error
}
