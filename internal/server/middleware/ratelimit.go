package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit returns an HTTP middleware that limits requests per IP address
// to the specified number per minute. Uses a sliding window algorithm.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.LimitByIP(requestsPerMinute, time.Minute)
}

// RateLimitByAPIKey returns an HTTP middleware that limits requests per API
// key to the specified number per minute. Buckets are keyed by the SHA-256
// of the X-API-Key header so raw key material never sits in the limiter's
// memory; requests without the header fall back to the client IP.
func RateLimitByAPIKey(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if key := r.Header.Get("X-API-Key"); key != "" {
				sum := sha256.Sum256([]byte(key))
				return hex.EncodeToString(sum[:]), nil
			}
			return httprate.KeyByIP(r)
		}),
	)
}
