package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hushboard/hushboard/internal/database"
	apierrors "github.com/hushboard/hushboard/internal/pkg/errors"
	"github.com/hushboard/hushboard/internal/pkg/response"
)

// RateLimitConfig defines rate limiting parameters. KeyPrefix namespaces the
// counter so limiters with different budgets never share a window: a client
// browsing the board must not burn through the credential budget.
type RateLimitConfig struct {
	KeyPrefix         string
	RequestsPerMinute int
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:         "global",
		RequestsPerMinute: 60,
		BurstSize:         10,
	}
}

// CredentialRateLimitConfig returns the tighter limits applied to the
// login and registration endpoints.
func CredentialRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		KeyPrefix:         "cred",
		RequestsPerMinute: 10,
		BurstSize:         5,
	}
}

// key builds the Redis counter key for a client under this limiter's
// namespace.
func (c RateLimitConfig) key(clientID string) string {
	return fmt.Sprintf("ratelimit:%s:%s", c.KeyPrefix, clientID)
}

// RateLimit returns a rate limiting middleware using Redis with a
// fixed one-minute window per client IP.
func RateLimit(redis *database.Redis, cfg RateLimitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := getClientID(r)
			key := cfg.key(clientID)

			ctx := r.Context()
			windowDuration := time.Minute

			// Increment counter and get current value
			count, err := redis.IncrWithExpire(ctx, key, windowDuration)
			if err != nil {
				// On Redis error, allow the request
				next.ServeHTTP(w, r)
				return
			}

			limit := cfg.RequestsPerMinute
			remaining := limit - int(count)
			if remaining < 0 {
				remaining = 0
			}

			resetTime := time.Now().Add(windowDuration).Unix()

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))

			if int(count) > limit+cfg.BurstSize {
				w.Header().Set("Retry-After", strconv.Itoa(60))
				response.Error(w, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientID extracts a unique identifier for the client.
func getClientID(r *http.Request) string {
	return "ip:" + getRealIP(r)
}

// getRealIP extracts the real client IP, considering proxies.
func getRealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return xrip
	}
	return r.RemoteAddr
}
