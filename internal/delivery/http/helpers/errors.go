package helpers

import (
	"errors"
	"log/slog"
	"net/http"

	"referrski/internal/domain"
)

// QuotaExceededMessage is shown to callers whose plan ceiling is reached.
const QuotaExceededMessage = "Invite limit reached for your plan. Please try again later or upgrade your plan."

// WriteServiceError maps a service error onto the JSON envelope. Unexpected
// errors are logged and reported as a generic 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		WriteValidationError(w, verr)
	case errors.Is(err, domain.ErrInvalidInput):
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, domain.ErrWebhookNotConfigured):
		WriteJSONError(w, http.StatusBadRequest, ErrCodeBadRequest, "no webhook URL configured for this app")
	case errors.Is(err, domain.ErrUnauthorized):
		WriteJSONError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		WriteJSONError(w, http.StatusForbidden, ErrCodeForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		WriteJSONError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	case errors.Is(err, domain.ErrQuotaExceeded):
		WriteJSONError(w, http.StatusForbidden, ErrCodeQuotaExceeded, QuotaExceededMessage)
	case errors.Is(err, domain.ErrRateLimited):
		WriteJSONError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "too many requests, try again later")
	case errors.Is(err, domain.ErrPlanUnavailable):
		logger.ErrorContext(r.Context(), "plan unavailable", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "subscription plan unavailable")
	default:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
