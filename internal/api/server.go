// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/engagement-monitor/internal/models"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// QueueServiceInterface defines the queue operations exposed over HTTP.
type QueueServiceInterface interface {
	EnqueueCampaignJobs(ctx context.Context, campaignID string) (int, error)
	Stats(ctx context.Context) (*models.JobQueueStats, error)
}

// AlertServiceInterface defines the alert operations exposed over HTTP.
type AlertServiceInterface interface {
	DetectAndQueue(ctx context.Context, campaignID string) (int, error)
}

// IndexServiceInterface defines the importance index operations exposed
// over HTTP.
type IndexServiceInterface interface {
	SyncImportantAccount(ctx context.Context, accountID, username string, weight float64, following []models.FollowedAccount) error
	Score(ctx context.Context, accountID string) (float64, error)
}

// EngagementReaderInterface lists stored engagements.
type EngagementReaderInterface interface {
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*models.EngagementRecord, error)
}

// AlertReaderInterface reads scheduled alerts.
type AlertReaderInterface interface {
	ListByCampaign(ctx context.Context, campaignID string, limit, offset int) ([]*models.AlertRecord, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.AlertRecord, error)
}

// ObservationReaderInterface reads the analytics sink's observation
// counts. Nil when the sink is disabled.
type ObservationReaderInterface interface {
	CountSince(ctx context.Context, campaignID string, since time.Time) (map[string]uint64, error)
}

// Server represents the HTTP API server.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	queueSvc     QueueServiceInterface
	alertSvc     AlertServiceInterface
	indexSvc     IndexServiceInterface
	engagements  EngagementReaderInterface
	alerts       AlertReaderInterface
	observations ObservationReaderInterface
	config       *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientRPS       int // per-client requests per second
	ClientBurst     int
}

// NewServer creates a new API server instance. observations may be nil
// when the analytics sink is disabled.
func NewServer(
	config *ServerConfig,
	queueSvc QueueServiceInterface,
	alertSvc AlertServiceInterface,
	indexSvc IndexServiceInterface,
	engagements EngagementReaderInterface,
	alerts AlertReaderInterface,
	observations ObservationReaderInterface,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		queueSvc:     queueSvc,
		alertSvc:     alertSvc,
		indexSvc:     indexSvc,
		engagements:  engagements,
		alerts:       alerts,
		observations: observations,
		config:       config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.ClientRPS, s.config.ClientBurst)

	// Middleware order matters: log first, recover inside, limit last.
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Queue endpoints
	api.HandleFunc("/campaigns/{id}/jobs", s.handleEnqueueCampaignJobs).Methods("POST")
	api.HandleFunc("/jobs/stats", s.handleJobStats).Methods("GET")

	// Engagement endpoints
	api.HandleFunc("/campaigns/{id}/engagements", s.handleListEngagements).Methods("GET")
	api.HandleFunc("/campaigns/{id}/observations", s.handleObservationCounts).Methods("GET")

	// Alert endpoints
	api.HandleFunc("/campaigns/{id}/alerts/detect", s.handleDetectAlerts).Methods("POST")
	api.HandleFunc("/campaigns/{id}/alerts", s.handleListAlerts).Methods("GET")
	api.HandleFunc("/alerts/due", s.handleListDueAlerts).Methods("GET")

	// Importance index endpoints
	api.HandleFunc("/index/sync", s.handleIndexSync).Methods("POST")
	api.HandleFunc("/index/{accountId}/score", s.handleIndexScore).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "engagement-monitor",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
