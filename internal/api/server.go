// Package api exposes the reconciliation engines over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lojaops/marketplace-recon-backend/internal/api/handlers"
	"github.com/lojaops/marketplace-recon-backend/internal/api/middleware"
	"github.com/lojaops/marketplace-recon-backend/internal/application/linking"
	"github.com/lojaops/marketplace-recon-backend/internal/application/payments"
	"github.com/lojaops/marketplace-recon-backend/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config        Config
	router        chi.Router
	httpServer    *http.Server
	logger        *slog.Logger
	repo          storage.Repository
	linkEngine    *linking.Engine
	paymentEngine *payments.Engine
}

// NewServer creates a new API server.
func NewServer(cfg Config, repo storage.Repository, linkEngine *linking.Engine, paymentEngine *payments.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:        cfg,
		router:        chi.NewRouter(),
		logger:        logger,
		repo:          repo,
		linkEngine:    linkEngine,
		paymentEngine: paymentEngine,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.CORSConfig{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}
	s.router.Use(middleware.CORS(corsConfig))
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check and metrics (no /api prefix - for load balancers/scrapers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		// Order links
		linksHandler := handlers.NewLinksHandler(s.repo, s.linkEngine)
		r.Post("/links/auto", linksHandler.AutoLink)
		r.Post("/links", linksHandler.Create)
		r.Delete("/links/{id}", linksHandler.Delete)
		r.Get("/links", linksHandler.List)

		// Payment imports
		importsHandler := handlers.NewImportsHandler(s.repo, s.paymentEngine)
		r.Post("/imports", importsHandler.Create)
		r.Post("/imports/{id}/confirm", importsHandler.Confirm)
		r.Get("/imports/{id}", importsHandler.Get)

		// Payments and batches
		paymentsHandler := handlers.NewPaymentsHandler(s.repo)
		r.Get("/payments", paymentsHandler.List)
		r.Get("/batches", paymentsHandler.Batches)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
