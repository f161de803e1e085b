package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/notifications"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/sirupsen/logrus"
)

// TestNotificationService outputs digests to terminal and files
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(report *models.Report) error {
	// Print to terminal
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Println("📊 PLATFORM HEALTH DIGEST")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("📅 Period: %s\n", report.Period)
	fmt.Printf("🕒 Generated: %s\n", report.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Printf("🔗 Connected Platforms: %v\n", report.Summary["connected_platforms"])

	fmt.Println("\n💓 Platform Health:")
	for _, u := range report.Platforms {
		fmt.Printf("   %s %-10s %-8s %6.0f ms  %4.1f%% errors  %3.0f%% rate limit\n",
			statusEmoji(u.Status), u.Platform, u.Status, u.ResponseTimeMS, u.ErrorRate, u.RateLimitPercent())
	}

	if attention, ok := report.Summary["needs_attention"].([]string); ok && len(attention) > 0 {
		fmt.Println("\n⚠️  Needs Attention:")
		for _, item := range attention {
			fmt.Printf("   • %s\n", item)
		}
	}

	fmt.Println("\n🔔 Recent Alerts:")
	for i, alert := range report.Alerts {
		if i >= 5 {
			fmt.Printf("   ... and %d more alerts\n", len(report.Alerts)-5)
			break
		}
		fmt.Printf("\n   %d. [%s] %s\n", i+1, alert.Severity, alert.Message)
		if alert.RecommendedAction != "" {
			fmt.Printf("      💡 Action: %s\n", alert.RecommendedAction)
		}
		fmt.Printf("      🕒 At: %s\n", alert.Timestamp.Format("2006-01-02 15:04"))
	}

	// Save to JSON file
	if err := t.saveReportToFile(report); err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) SendAlert(alert *models.Alert) error {
	fmt.Printf("🚨 ALERT [%s] %s: %s\n", alert.Severity, alert.Platform, alert.Message)
	return nil
}

func (t *TestNotificationService) saveReportToFile(report *models.Report) error {
	dir := "test_output"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	timestamp := report.GeneratedAt.Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("health_digest_%s.json", timestamp))

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\n💾 Digest saved to: %s\n", filename)
	return nil
}

// replayStream plays a fixed list of events once per Connect
type replayStream struct {
	events []health.Event

	mu       sync.Mutex
	state    health.State
	handlers map[health.EventType][]health.Handler
	wg       sync.WaitGroup
}

func (r *replayStream) Connect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == health.StateOpen {
		return
	}
	r.state = health.StateOpen

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for _, e := range r.events {
			r.mu.Lock()
			handlers := append([]health.Handler(nil), r.handlers[e.Type]...)
			r.mu.Unlock()
			for _, h := range handlers {
				h(e)
			}
		}
	}()
}

func (r *replayStream) DisconnectAll() {
	r.wg.Wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = health.StateClosed
	r.handlers = nil
}

func (r *replayStream) On(t health.EventType, h health.Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[health.EventType][]health.Handler)
	}
	r.handlers[t] = append(r.handlers[t], h)
	return func() {}
}

func (r *replayStream) State() health.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Wait blocks until the current replay has been delivered
func (r *replayStream) Wait() {
	r.wg.Wait()
}

type staticSnapshots []models.HealthUpdate

func (s staticSnapshots) Fetch(ctx context.Context) ([]models.HealthUpdate, error) {
	return s, nil
}

func main() {
	send := flag.Bool("send", false, "also deliver the digest through the configured Teams/email channels")
	flag.Parse()

	fmt.Println("🤖 PostProber - Test Digest Generator")
	fmt.Println("====================================")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}
	logrus.SetLevel(logrus.WarnLevel)

	cfg := &config.Config{
		AlertBufferSize: 10,
		AlertCooldown:   15 * time.Minute,
	}

	registry, err := platforms.NewRegistry(storage.NewMemoryStorage(), platforms.StaticAuthenticator{})
	if err != nil {
		log.Fatalf("Failed to create registry: %v", err)
	}

	now := time.Now().UTC()
	stream := &replayStream{events: sampleEvents(now)}
	ctx := context.Background()
	for _, id := range platforms.CatalogIDs() {
		if _, err := registry.Connect(ctx, id, models.Credentials{Username: "postprober_" + id}); err != nil {
			log.Fatalf("Failed to connect %s: %v", id, err)
		}
	}

	// Started after connecting so the replay sees every platform
	service := monitoring.NewService(cfg, registry, stream, sampleSnapshot(now), &TestNotificationService{})
	service.Start()
	defer service.Stop()
	stream.Wait()

	if err := service.RefreshSnapshot(ctx); err != nil {
		log.Fatalf("Failed to apply snapshot: %v", err)
	}

	fmt.Println("\n📝 Generating health digest with sample data...")
	report := service.GenerateDigest("daily")

	var notifier notifications.NotificationInterface = &TestNotificationService{}
	if err := notifier.SendReport(report); err != nil {
		log.Fatalf("Failed to print digest: %v", err)
	}

	if *send {
		full, err := config.Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
		if !full.NotificationsEnabled() {
			fmt.Println("⚠️  No TEAMS_WEBHOOK_URL or NOTIFICATION_EMAIL configured, nothing sent")
		} else if err := notifications.NewService(full).SendReport(report); err != nil {
			fmt.Printf("❌ Failed to deliver digest: %v\n", err)
		} else {
			fmt.Println("✅ Digest delivered to configured channels")
		}
	}

	fmt.Println("\n✅ Test digest generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the test_output/ directory for the JSON digest")
	fmt.Println("   • Re-run with -send to deliver it through Teams/email")
	fmt.Println("   • Run the integration test with: go run ./cmd/test-integration")
}

func sampleSnapshot(now time.Time) staticSnapshots {
	return staticSnapshots{
		{Platform: "twitter", Status: models.HealthHealthy, ResponseTimeMS: 180, ErrorRate: 0.2, RateLimitUsed: 120, RateLimitTotal: 500, LastCheck: now.Add(-2 * time.Minute)},
		{Platform: "instagram", Status: models.HealthHealthy, ResponseTimeMS: 240, ErrorRate: 0.1, RateLimitUsed: 40, RateLimitTotal: 200, LastCheck: now.Add(-2 * time.Minute)},
		{Platform: "linkedin", Status: models.HealthHealthy, ResponseTimeMS: 310, ErrorRate: 0, RateLimitUsed: 12, RateLimitTotal: 100, LastCheck: now.Add(-2 * time.Minute)},
		{Platform: "facebook", Status: models.HealthHealthy, ResponseTimeMS: 205, ErrorRate: 0.4, RateLimitUsed: 60, RateLimitTotal: 200, LastCheck: now.Add(-2 * time.Minute)},
		// Not connected, so it never reaches the digest
		{Platform: "youtube", Status: models.HealthCritical, ResponseTimeMS: 5000, ErrorRate: 40, LastCheck: now.Add(-2 * time.Minute)},
	}
}

// sampleEvents are the stream's view, which overrides the snapshot
func sampleEvents(now time.Time) []health.Event {
	instagram := models.HealthUpdate{Platform: "instagram", Status: models.HealthCritical, ResponseTimeMS: 4200, ErrorRate: 18.5, RateLimitUsed: 198, RateLimitTotal: 200, LastCheck: now.Add(-time.Minute), Details: "Graph API returning 503"}
	twitter := models.HealthUpdate{Platform: "twitter", Status: models.HealthWarning, ResponseTimeMS: 950, ErrorRate: 3.1, RateLimitUsed: 450, RateLimitTotal: 500, LastCheck: now.Add(-time.Minute)}

	return []health.Event{
		{Type: health.EventConnection, At: now},
		{Type: health.EventHistory, At: now, Alerts: []models.Alert{
			{ID: "hist-1", Platform: "facebook", Severity: models.SeverityInfo, Message: "Facebook API recovered", Timestamp: now.Add(-6 * time.Hour)},
		}},
		{Type: health.EventHealthUpdate, At: now, Update: &instagram},
		{Type: health.EventHealthUpdate, At: now, Update: &twitter},
		{Type: health.EventHealthAlert, At: now, Alert: &models.Alert{
			ID: "alert-1", Platform: "twitter", Severity: models.SeverityWarning,
			Message:           "Twitter rate limit above 90%",
			RecommendedAction: "Spread scheduled posts over the next hour",
			Timestamp:         now.Add(-30 * time.Minute),
		}},
		{Type: health.EventHealthAlert, At: now, Alert: &models.Alert{
			ID: "alert-2", Platform: "instagram", Severity: models.SeverityCritical,
			Message:           "Instagram API is down",
			RecommendedAction: "Pause Instagram posting until the API recovers",
			Timestamp:         now.Add(-10 * time.Minute),
		}},
	}
}

func statusEmoji(status models.HealthStatus) string {
	switch status {
	case models.HealthCritical:
		return "🔴"
	case models.HealthWarning:
		return "🟡"
	default:
		return "🟢"
	}
}
