package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	h "referrski/internal/delivery/http/helpers"
	"referrski/internal/domain"
)

// RateLimitKeyFunc derives the limiter key for a request. An empty key skips limiting.
type RateLimitKeyFunc func(r *http.Request) string

// UserKey keys the limiter by the authenticated dashboard user. It must run after RequireAuth.
func UserKey(action string) RateLimitKeyFunc {
	return func(r *http.Request) string {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			return ""
		}
		return action + ":" + userID
	}
}

// RateLimit returns a wrapper that answers 429 once key exceeds the limiter's window.
// Retry-After advertises the window length in whole seconds.
// A nil limiter disables limiting. When the limiter itself fails the request is let through
// if failOpen is set and rejected with 503 otherwise.
func RateLimit(limiter domain.RateLimiter, window time.Duration, key RateLimitKeyFunc, failOpen bool, logger *slog.Logger) func(http.HandlerFunc) http.HandlerFunc {
	retryAfter := retryAfterSeconds(window)
	return func(next http.HandlerFunc) http.HandlerFunc {
		if limiter == nil {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next(w, r)
				return
			}
			allowed, err := limiter.Allow(r.Context(), k)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limiter unavailable", "key", k, "fail_open", failOpen, "error", err)
				if !failOpen {
					h.WriteJSONError(w, http.StatusServiceUnavailable, h.ErrCodeUnavailable, "rate limiter unavailable")
					return
				}
				next(w, r)
				return
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter)
				h.WriteJSONError(w, http.StatusTooManyRequests, h.ErrCodeRateLimited, "too many requests, try again later")
				return
			}
			next(w, r)
		}
	}
}

func retryAfterSeconds(window time.Duration) string {
	if window <= 0 {
		window = time.Minute
	}
	return strconv.Itoa(max(int(math.Ceil(window.Seconds())), 1))
}
