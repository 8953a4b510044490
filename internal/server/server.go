// Package server assembles the HTTP API: route registration, the middleware
// chain, and graceful lifecycle around net/http.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/gaspilot/internal/server/handler"
	"github.com/alanyoungcy/gaspilot/internal/server/middleware"
	"github.com/alanyoungcy/gaspilot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, authentication is disabled
	RateLimitPerMin int    // if zero or negative, rate limiting is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Fees   *handler.FeeHandler
	Policy *handler.PolicyHandler
	Status *handler.StatusHandler
}

// Server is the HTTP + WebSocket API server for the gas optimization service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limit) wired around it. Read
// endpoints stay open; the mutating policy route additionally requires the
// API key when one is configured.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	keyed := middleware.Auth(cfg.APIKey)

	// Health check.
	mux.HandleFunc("GET /api/v1/health", handlers.Health.HealthCheck)

	// Fee data endpoints.
	mux.HandleFunc("GET /api/v1/fees/snapshot", handlers.Fees.GetSnapshot)
	mux.HandleFunc("POST /api/v1/fees/optimize", handlers.Fees.Optimize)

	// Policy endpoints.
	mux.HandleFunc("GET /api/v1/policy", handlers.Policy.GetPolicy)
	mux.Handle("PUT /api/v1/policy", keyed(http.HandlerFunc(handlers.Policy.UpdatePolicy)))

	// Service status.
	mux.HandleFunc("GET /api/v1/status", handlers.Status.GetStatus)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.RateLimit(cfg.RateLimitPerMin)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
