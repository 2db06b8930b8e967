// Package api provides the HTTP surface for recognition ingestion and
// moderation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kudoshq/shrike/internal/activity"
	"github.com/kudoshq/shrike/internal/audit"
	"github.com/kudoshq/shrike/internal/detect"
	"github.com/kudoshq/shrike/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *detect.Engine, rules *detect.RuleSet, act *activity.Service, sink *audit.Sink, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, rules, act, sink, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Recognition ingestion and retrieval
		r.Post("/recognitions", handler.CreateRecognition)
		r.Get("/recognitions/{id}", handler.GetRecognition)
		r.Get("/recognitions/{id}/flags", handler.ListRecognitionFlags)

		// Moderation queue
		r.Get("/flags", handler.ListFlags)
		r.Patch("/flags/{id}", handler.UpdateFlagStatus)

		// Recipient ranking
		r.Get("/leaderboard", handler.Leaderboard)

		// Audit trail
		r.Get("/audit", handler.ListAuditEntries)

		// Custom rule management
		r.Get("/rules", handler.ListRules)
		r.Get("/rules/{id}", handler.GetRule)
		r.Post("/rules", handler.CreateRule)
		r.Post("/rules/reload", handler.ReloadRules)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
