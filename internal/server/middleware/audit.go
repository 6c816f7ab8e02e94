package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/model"
)

// Audit returns an HTTP middleware that records one usage row per
// API-key-authenticated request. Recording is best effort and asynchronous;
// a failed insert never affects the response. Must run after Authenticate.
func Audit(store *config.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)

			principal := GetPrincipal(r.Context())
			if principal == nil || principal.Key == nil {
				return
			}

			ip := r.RemoteAddr
			if host, _, err := net.SplitHostPort(ip); err == nil {
				ip = host
			}

			rec := &model.UsageRecord{
				APIKeyID: principal.Key.ID,
				Endpoint: r.URL.Path,
				Method:   r.Method,
				Status:   ww.status,
				CallerIP: ip,
			}
			go store.InsertUsage(context.Background(), rec)
		})
	}
}
