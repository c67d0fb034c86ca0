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

	"github.com/kidvue/gatekeeper/internal/handler"
	"github.com/kidvue/gatekeeper/internal/ratelimit"
	"github.com/kidvue/gatekeeper/internal/rbac"
	"github.com/kidvue/gatekeeper/internal/server/middleware"
	"github.com/kidvue/gatekeeper/internal/service"
	"github.com/kidvue/gatekeeper/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	APIRateLimit    int // requests per minute per IP across the whole API
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		APIRateLimit:    100,
	}
}

// Server is the top-level HTTP server for Gatekeeper. It owns the Chi
// router, the backing store, the token service, and the login rate
// limiter.
type Server struct {
	cfg          Config
	router       chi.Router
	store        *store.Store
	tokens       *service.TokenService
	loginLimiter *ratelimit.Limiter
	httpServer   *http.Server
	logger       *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, st *store.Store, tokens *service.TokenService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:          cfg,
		store:        st,
		tokens:       tokens,
		loginLimiter: ratelimit.NewLoginLimiter(),
		logger:       logger,
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.APIRateLimit > 0 {
		r.Use(middleware.APIRateLimit(s.cfg.APIRateLimit))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- API routes ---
	r.Route("/api/v1", func(r chi.Router) {
		authHandler := handler.NewAuthHandler(s.store, s.tokens, s.logger)
		adminHandler := handler.NewAdminHandler(s.store, s.tokens, s.logger)

		r.Route("/auth", func(r chi.Router) {
			// Login carries its own per-fingerprint limiter on top of
			// the coarse per-IP one.
			r.With(middleware.LoginRateLimit(s.loginLimiter)).Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Post("/refresh", authHandler.Refresh)

			// The admin probe never errors for anonymous callers.
			r.With(middleware.OptionalAuthenticate(s.tokens)).Get("/admin-check", authHandler.AdminCheck)
			r.With(middleware.OptionalAuthenticate(s.tokens)).Post("/logout", authHandler.Logout)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(s.tokens))
				r.Post("/revoke", authHandler.Revoke)
			})
		})

		// System endpoints require an admin identity; mutations are
		// restricted further by role.
		r.Route("/system", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.tokens))
			r.Use(middleware.RequireAdmin())

			r.Get("/admin", adminHandler.ListAdmins)
			r.Post("/admin/{adminID}/ban", adminHandler.BanAdmin)
			r.Delete("/user/{userID}", adminHandler.DeleteUser)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(rbac.RoleSuperAdmin))
				r.Post("/admin", adminHandler.CreateAdmin)
				r.Put("/admin/{adminID}/role", adminHandler.UpdateAdminRole)
			})
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

// handleReadyz is a readiness probe. Returns 200 when the backing store
// is reachable, or 503 otherwise.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if err := s.store.Ping(r.Context()); err != nil {
		checks["store"] = "error: " + err.Error()
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
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
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
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

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
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
