package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultOtpRateLimit limits code requests per IP. Three per minute keeps
// the email pipeline honest without breaking a legitimate resend.
func DefaultOtpRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 3, Window: time.Minute}
}

// DefaultAuthRateLimit limits login and password-reset attempts per IP
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{Requests: 10, Window: time.Minute}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate_limit_exceeded","message":"Too many requests. Try again shortly."}`))
		}),
	)
}
