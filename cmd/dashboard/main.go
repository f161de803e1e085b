package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/postprober/dashboard-core/internal/api"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/insights"
	"github.com/postprober/dashboard-core/internal/metrics"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/notifications"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/postprober/dashboard-core/internal/scheduler"
	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting PostProber dashboard core")

	// Metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(promRegistry)

	// Initialize storage
	store, closer, err := storage.New(cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closer.Close()

	// Platform registry
	var authenticator platforms.Authenticator = platforms.StaticAuthenticator{}
	if cfg.AuthMode == "backend" {
		authenticator = platforms.NewBackendAuthenticator(cfg.BackendURL, cfg.SessionID)
	}

	registry, err := platforms.NewRegistry(store, authenticator, platforms.WithMetrics(appMetrics))
	if err != nil {
		logrus.Fatalf("Failed to load platform registry: %v", err)
	}

	// Health stream and snapshot clients
	header := http.Header{}
	if cfg.SessionID != "" {
		header.Set("Cookie", "session_id="+cfg.SessionID)
	}
	stream := health.NewStreamClient(cfg.HealthStreamURL,
		health.WithBackoff(cfg.ReconnectInitialDelay, cfg.ReconnectMaxDelay),
		health.WithDialer(&websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}),
		health.WithHeader(header),
		health.WithStreamMetrics(appMetrics),
	)
	snapshots := health.NewSnapshotClient(cfg.BackendURL)

	// Initialize notification services
	var notifier notifications.NotificationInterface
	if cfg.NotificationsEnabled() {
		notifier = notifications.NewService(cfg)
	} else {
		logrus.Info("No notification channels configured, alerts stay on the dashboard")
	}

	// Initialize monitoring service
	monitoringService := monitoring.NewService(cfg, registry, stream, snapshots, notifier, monitoring.WithMetrics(appMetrics))
	monitoringService.Start()
	defer monitoringService.Stop()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := monitoringService.RefreshSnapshot(ctx); err != nil {
			logrus.Warnf("Initial health snapshot failed: %v", err)
		}
	}()

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, monitoringService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	// AI insights client
	insightsClient := insights.NewClient(cfg.BackendURL, insights.Options{
		Timeout:   cfg.InsightsTimeout,
		RateLimit: cfg.InsightsRateLimit,
		Burst:     cfg.InsightsBurst,
		Metrics:   appMetrics,
	})

	// Set up HTTP server
	router := api.NewServer(registry, monitoringService, insightsClient, promRegistry).Router()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
