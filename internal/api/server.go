// Package api provides the HTTP surface of the orchestration service:
// operator commands, progress reads, the provider webhook receiver, and
// manual sweep triggers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/screening-orchestrator/internal/logging"
	"github.com/screening-orchestrator/internal/models"
	"github.com/screening-orchestrator/internal/provider"
	"github.com/screening-orchestrator/internal/screening"
)

// Service interfaces for dependency injection and testing

// OrchestrationService defines the operator-facing operations
type OrchestrationService interface {
	CreateBulkOperation(ctx context.Context, input *screening.CreateBulkOperationInput) (*models.BulkOperation, error)
	CreateScreening(ctx context.Context, input *screening.CreateScreeningInput) (*models.Screening, error)
	GetScreening(ctx context.Context, id string) (*models.Screening, error)
	Progress(ctx context.Context, bulkOperationID string, recount bool) (*models.BulkOperationProgress, error)
	Pause(ctx context.Context, bulkOperationID string) error
	Resume(ctx context.Context, bulkOperationID string) error
	Cancel(ctx context.Context, bulkOperationID string) error
	RetryFailed(ctx context.Context, bulkOperationID string) (int, error)
}

// WebhookIngester consumes provider completion notifications
type WebhookIngester interface {
	Ingest(ctx context.Context, event *provider.WebhookEvent) error
}

// SweepRunner runs one sweep pass and reports how many rows it handled
type SweepRunner interface {
	RunSweep(ctx context.Context) (int, error)
}

// Server represents the HTTP API server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	service    OrchestrationService
	ingester   WebhookIngester
	scheduled  SweepRunner
	reconcile  SweepRunner
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int // Per-caller rate limit for operator endpoints
}

// NewServer creates a new API server instance
func NewServer(
	config *ServerConfig,
	service OrchestrationService,
	ingester WebhookIngester,
	scheduledSweep SweepRunner,
	reconcileSweep SweepRunner,
	logger *logging.Logger,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		service:   service,
		ingester:  ingester,
		scheduled: scheduledSweep,
		reconcile: reconcileSweep,
		config:    config,
		logger:    logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Middleware order matters: recovery wraps everything, rate limiting
	// runs after CORS so preflight requests are never throttled.
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)

	s.setupRoutes(rateLimiter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(rateLimiter *RateLimiter) {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Operator API, rate limited per caller
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(rateLimiter))

	// Bulk operation endpoints
	api.HandleFunc("/bulk-operations", s.handleCreateBulkOperation).Methods("POST")
	api.HandleFunc("/bulk-operations/{id}/progress", s.handleGetProgress).Methods("GET")
	api.HandleFunc("/bulk-operations/{id}/pause", s.handlePause).Methods("POST")
	api.HandleFunc("/bulk-operations/{id}/resume", s.handleResume).Methods("POST")
	api.HandleFunc("/bulk-operations/{id}/cancel", s.handleCancel).Methods("POST")
	api.HandleFunc("/bulk-operations/{id}/retry-failed", s.handleRetryFailed).Methods("POST")

	// Single screening endpoints
	api.HandleFunc("/screenings", s.handleCreateScreening).Methods("POST")
	api.HandleFunc("/screenings/{id}", s.handleGetScreening).Methods("GET")

	// Manual sweep triggers for operations tooling
	api.HandleFunc("/sweeps/scheduled-calls", s.handleScheduledSweep).Methods("POST")
	api.HandleFunc("/sweeps/reconciliation", s.handleReconcileSweep).Methods("POST")

	// Provider webhook endpoint, not rate limited
	s.router.HandleFunc("/webhooks/call-events", s.handleCallWebhook).Methods("POST")
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "screening-orchestrator",
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
