package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/insights"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PlatformRegistry is what the API needs from the platform registry
type PlatformRegistry interface {
	GetAll() []models.Platform
	GetConnected() []models.Platform
	Get(id string) (models.Platform, error)
	Connect(ctx context.Context, id string, creds models.Credentials) (models.Platform, error)
	Disconnect(ctx context.Context, id string) error
	IsOnboardingComplete() bool
	IsFirstTimeUser() bool
	MarkOnboardingComplete() error
}

// HealthMonitor is what the API needs from the health consumer
type HealthMonitor interface {
	CurrentHealth() []models.HealthUpdate
	Health(platform string) (models.HealthUpdate, bool)
	RecentAlerts() []models.Alert
	RefreshSnapshot(ctx context.Context) error
	StreamState() health.State
	GetMetrics() string
}

// InsightsClient is what the API needs from the AI backend client
type InsightsClient interface {
	OptimizeWithHashtags(ctx context.Context, content, platform string) (*insights.OptimizeResult, error)
	GetAnalyticsDashboard(ctx context.Context, platform string) (*insights.AnalyticsDashboard, error)
}

var (
	_ PlatformRegistry = (*platforms.Registry)(nil)
	_ HealthMonitor    = (*monitoring.Service)(nil)
	_ InsightsClient   = (*insights.Client)(nil)
)

// Server wires the dashboard core to HTTP
type Server struct {
	registry PlatformRegistry
	monitor  HealthMonitor
	insights InsightsClient
	gatherer prometheus.Gatherer
}

// NewServer creates the API. gatherer may be nil to serve the default registry.
func NewServer(registry PlatformRegistry, monitor HealthMonitor, insightsClient InsightsClient, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		registry: registry,
		monitor:  monitor,
		insights: insightsClient,
		gatherer: gatherer,
	}
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	// Liveness and metrics
	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	router.HandleFunc("/api/stats", s.statsHandler).Methods("GET")

	// Platform registry
	router.HandleFunc("/api/platforms", s.listPlatformsHandler).Methods("GET")
	router.HandleFunc("/api/platforms/connected", s.connectedPlatformsHandler).Methods("GET")
	router.HandleFunc("/api/platforms/{id}", s.getPlatformHandler).Methods("GET")
	router.HandleFunc("/api/platforms/{id}/connect", s.connectHandler).Methods("POST")
	router.HandleFunc("/api/platforms/{id}/disconnect", s.disconnectHandler).Methods("POST")

	// Onboarding flags
	router.HandleFunc("/api/onboarding", s.onboardingHandler).Methods("GET")
	router.HandleFunc("/api/onboarding/complete", s.completeOnboardingHandler).Methods("POST")

	// Health board
	router.HandleFunc("/api/health/current", s.currentHealthHandler).Methods("GET")
	router.HandleFunc("/api/health/current/{id}", s.platformHealthHandler).Methods("GET")
	router.HandleFunc("/api/health/alerts", s.alertsHandler).Methods("GET")
	router.HandleFunc("/api/health/refresh", s.refreshHandler).Methods("POST")
	router.HandleFunc("/api/health/stream", s.streamStateHandler).Methods("GET")

	// AI insights passthrough
	router.HandleFunc("/api/content/optimize", s.optimizeHandler).Methods("POST")
	router.HandleFunc("/api/analytics/{platform}", s.analyticsHandler).Methods("GET")

	return router
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
