package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/sirupsen/logrus"
)

// SimpleTestNotification prints what would be sent
type SimpleTestNotification struct{}

func (s *SimpleTestNotification) SendReport(report *models.Report) error {
	fmt.Println("\n🎉 DIGEST GENERATED!")
	fmt.Printf("🔗 Connected platforms: %v\n", report.Summary["connected_platforms"])
	for _, u := range report.Platforms {
		fmt.Printf("   • %-10s %-8s %6.0f ms\n", u.Platform, u.Status, u.ResponseTimeMS)
	}
	if attention, ok := report.Summary["needs_attention"].([]string); ok && len(attention) > 0 {
		fmt.Printf("⚠️  Needs attention: %s\n", strings.Join(attention, ", "))
	}
	return nil
}

func (s *SimpleTestNotification) SendAlert(alert *models.Alert) error {
	fmt.Printf("🚨 ALERT [%s] %s: %s\n", alert.Severity, alert.Platform, alert.Message)
	return nil
}

// Frames a health monitor sends right after a client connects
var monitorFrames = []string{
	`{"type":"connection","message":"Connected to health monitor"}`,
	`{"type":"history","alerts":[{"id":"a-1","platform":"twitter","severity":"info","message":"Twitter recovered","timestamp":"2026-10-16T08:00:00"}]}`,
	`{"type":"health_update","platforms":[
		{"platform":"twitter","status":"degraded","response_time":840,"error_rate":2.5,"rate_limit_used":410,"rate_limit_total":500,"last_check":"2026-10-16T09:00:00"},
		{"platform":"linkedin","status":"healthy","response_time":120,"error_rate":0,"rate_limit_used":10,"rate_limit_total":100,"last_check":"2026-10-16T09:00:00"}
	]}`,
	`{"type":"health_alert","alert":{"id":"a-2","platform":"twitter","severity":"warning","message":"Twitter API response times elevated","recommended_action":"Delay scheduled posts","timestamp":"2026-10-16T09:00:01"}}`,
}

func main() {
	fmt.Println("🧪 PostProber - Local Integration Test")
	fmt.Println("=====================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Everything runs in process: memory storage and a fake health monitor
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logrus.SetLevel(logrus.WarnLevel)

	monitor := startFakeMonitor()
	defer monitor.Close()
	streamURL := "ws" + strings.TrimPrefix(monitor.URL, "http")
	fmt.Printf("📡 Fake health monitor listening on %s\n", streamURL)

	registry, err := platforms.NewRegistry(storage.NewMemoryStorage(), platforms.StaticAuthenticator{})
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}

	stream := health.NewStreamClient(streamURL, health.WithBackoff(100*time.Millisecond, time.Second))
	service := monitoring.NewService(cfg, registry, stream, nil, &SimpleTestNotification{})
	service.Start()
	defer service.Stop()

	fmt.Printf("🔸 Stream state before connecting: %s\n", service.StreamState())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("\n🔗 Connecting twitter...")
	if _, err := registry.Connect(ctx, "twitter", models.Credentials{Username: "postprober_demo"}); err != nil {
		log.Fatalf("Failed to connect twitter: %v", err)
	}

	if !waitFor(5*time.Second, func() bool { return len(service.RecentAlerts()) >= 2 }) {
		fmt.Println("❌ Timed out waiting for stream events")
	}

	fmt.Printf("🔸 Stream state: %s\n", service.StreamState())

	fmt.Println("\n💓 Current health:")
	for _, u := range service.CurrentHealth() {
		fmt.Printf("   • %-10s %-8s rate limit %.0f%%\n", u.Platform, u.Status, u.RateLimitPercent())
	}
	if _, ok := service.Health("linkedin"); !ok {
		fmt.Println("   ✅ linkedin update ignored (not connected)")
	}

	fmt.Println("\n🔔 Recent alerts (newest first):")
	for _, a := range service.RecentAlerts() {
		fmt.Printf("   • [%s] %s: %s\n", a.Severity, a.Platform, a.Message)
	}

	if err := service.SendDigest(); err != nil {
		fmt.Printf("❌ Digest failed: %v\n", err)
	}

	fmt.Println("\n🔌 Disconnecting twitter...")
	if err := registry.Disconnect(ctx, "twitter"); err != nil {
		log.Fatalf("Failed to disconnect twitter: %v", err)
	}

	if service.StreamState() == health.StateClosed {
		fmt.Println("✅ Stream closed once no platforms are connected")
	} else {
		fmt.Printf("❌ Stream still %s after last disconnect\n", service.StreamState())
	}

	fmt.Println("\n📈 Metrics:")
	fmt.Println(service.GetMetrics())

	fmt.Println("\n✅ Integration test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Point HEALTH_STREAM_URL at a real monitor and run: go run ./cmd/test-apis")
	fmt.Println("   • Run the dashboard core with: go run ./cmd/dashboard")
}

func startFakeMonitor() *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range monitorFrames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return cond()
}
