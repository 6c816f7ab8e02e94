// Package server wires the HTTP surface: routing, middleware, and process
// lifecycle.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/treenteq/harbor/internal/config"
	"github.com/treenteq/harbor/internal/handler"
	"github.com/treenteq/harbor/internal/openapi"
	"github.com/treenteq/harbor/internal/quote"
	"github.com/treenteq/harbor/internal/server/middleware"
	"github.com/treenteq/harbor/internal/service"
)

// Pinger is a reachability probe for an upstream dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps bundles the services the server exposes over HTTP.
type Deps struct {
	Store   *config.Store
	Auth    *service.AuthService
	Keys    *service.APIKeyService
	Catalog handler.Catalog
	Engine  handler.Redeemer
	Quotes  *quote.Cache
	Chain   Pinger // optional; checked by the readiness probe when set
}

// Server is the top-level HTTP server for Harbor. It owns the Chi router and
// the request middleware stack.
type Server struct {
	cfg        config.ServerConfig
	limits     config.LimitsConfig
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg config.ServerConfig, limits config.LimitsConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		limits: limits,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.limits.RequestsPerMinute > 0 {
		r.Use(middleware.RateLimit(s.limits.RequestsPerMinute))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", openapi.Handler())

	// --- Account login (unauthenticated) ---
	sessionHandler := handler.NewSessionHandler(s.deps.Auth)
	r.Post("/session", sessionHandler.Login)

	// --- Authenticated API ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(s.deps.Auth))
		r.Use(middleware.Audit(s.deps.Store))

		// Dataset consumption (API key)
		quoteHandler := handler.NewQuoteHandler(s.deps.Catalog, s.deps.Quotes)
		datasetsHandler := handler.NewDatasetsHandler(s.deps.Engine)

		r.Group(func(r chi.Router) {
			if s.limits.RequestsPerMinute > 0 {
				r.Use(middleware.RateLimitByAPIKey(s.limits.RequestsPerMinute))
			}
			r.With(middleware.RequireAPIKey("datasets:read")).
				Get("/quote", quoteHandler.GetQuote)
			r.With(middleware.RequireAPIKey("datasets:purchase")).
				Post("/datasets", datasetsHandler.Redeem)
		})

		// Key management (account session)
		keysHandler := handler.NewAPIKeysHandler(s.deps.Keys)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireUser())
			r.Post("/api-keys", keysHandler.Create)
			r.Get("/api-keys", keysHandler.List)
			r.Delete("/api-keys/{keyID}", keysHandler.Delete)
			r.Get("/api-keys/{keyID}/usage", keysHandler.Usage)
		})
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the record store and
// the chain RPC endpoint are reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.deps.Store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	if s.deps.Chain != nil {
		if err := s.deps.Chain.Ping(r.Context()); err != nil {
			checks["chain"] = "error: " + err.Error()
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["chain"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the record store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // redemptions can wait on confirmations
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.deps.Store.Close()
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
