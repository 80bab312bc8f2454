package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	h "referrski/internal/delivery/http/helpers"
	"referrski/internal/domain"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	scopeKey     contextKey = "scope"
)

// SetPrincipal returns a context carrying the authenticated dashboard user.
func SetPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return SetScope(ctx, domain.UserScope(p.UserID))
}

// PrincipalFromContext returns the authenticated dashboard user, if present.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*domain.Principal)
	return p, ok && p != nil
}

// UserIDFromContext returns the authenticated user ID from the context, if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return "", false
	}
	return p.UserID, true
}

// SetScope returns a context carrying the caller's tenant scope.
func SetScope(ctx context.Context, scope domain.Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// ScopeFromContext returns the caller's tenant scope, if present.
func ScopeFromContext(ctx context.Context) (domain.Scope, bool) {
	s, ok := ctx.Value(scopeKey).(domain.Scope)
	return s, ok
}

func bearerToken(r *http.Request) (string, string) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", "missing authorization header"
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", "invalid authorization format"
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", "missing token"
	}
	return token, ""
}

// RequireAuth returns a wrapper that validates the dashboard Bearer token and sets the principal in the request context.
// If the token is missing or invalid, it responds with 401 and does not call next.
func RequireAuth(verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, problem)
				return
			}
			p, err := verifier.Verify(token)
			if err != nil {
				logger.DebugContext(r.Context(), "token rejected", "error", err)
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "invalid or expired token")
				return
			}
			next(w, r.WithContext(SetPrincipal(r.Context(), p)))
		}
	}
}

// RequireAppAccess accepts either the static secret of the app named by the {id} path value
// or a dashboard token. A matching secret yields an app scope; otherwise the token is verified
// as a dashboard token and ownership is checked later by the service.
// Every failure is the same 401 so callers cannot tell which half of app id and secret was wrong.
func RequireAppAccess(apps domain.AppRepository, verifier domain.TokenVerifier, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, problem := bearerToken(r)
			if problem != "" {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, problem)
				return
			}
			appID := r.PathValue("id")
			ok, err := matchAppSecret(r.Context(), apps, appID, r.Header.Get("Authorization"), token)
			if err != nil {
				logger.ErrorContext(r.Context(), "app secret lookup failed", "app_id", appID, "error", err)
				h.WriteJSONError(w, http.StatusInternalServerError, h.ErrCodeInternalError, "internal server error")
				return
			}
			if ok {
				next(w, r.WithContext(SetScope(r.Context(), domain.AppScope(appID))))
				return
			}
			p, err := verifier.Verify(token)
			if err != nil {
				h.WriteJSONError(w, http.StatusUnauthorized, h.ErrCodeUnauthorized, "unauthorized")
				return
			}
			next(w, r.WithContext(SetPrincipal(r.Context(), p)))
		}
	}
}

// matchAppSecret reports whether the request carries the app's stored secret, either as the
// bare bearer token or as the whole Authorization value.
func matchAppSecret(ctx context.Context, apps domain.AppRepository, appID, header, token string) (bool, error) {
	if appID == "" {
		return false, nil
	}
	app, err := apps.GetByID(ctx, appID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	secret := app.WebhookAuthorization()
	if secret == "" {
		return false, nil
	}
	tokenMatch := subtle.ConstantTimeCompare([]byte(token), []byte(secret))
	headerMatch := subtle.ConstantTimeCompare([]byte(header), []byte(secret))
	return tokenMatch|headerMatch == 1, nil
}
