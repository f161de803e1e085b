package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/postprober/dashboard-core/internal/config"
	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/insights"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/platforms"
)

func main() {
	fmt.Println("🔍 PostProber - Backend Connectivity Test")
	fmt.Println("=========================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	fmt.Printf("\n📡 Backend: %s\n", cfg.BackendURL)
	fmt.Println(strings.Repeat("-", 40))

	testSnapshot(ctx, cfg)
	testStream(cfg)
	testInsights(ctx, cfg)
	testAuth(ctx, cfg)

	fmt.Println("\n✅ Backend connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Set BACKEND_URL and HEALTH_STREAM_URL in .env if anything failed")
	fmt.Println("   • Run the dashboard core with: go run ./cmd/dashboard")
}

func testSnapshot(ctx context.Context, cfg *config.Config) {
	fmt.Print("🔸 Testing health snapshot... ")

	updates, err := health.NewSnapshotClient(cfg.BackendURL).Fetch(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d platforms)\n", len(updates))
	for _, u := range updates {
		fmt.Printf("   • %-10s %-8s %6.0f ms\n", u.Platform, u.Status, u.ResponseTimeMS)
	}
}

func testStream(cfg *config.Config) {
	fmt.Print("🔸 Testing health stream... ")

	client := health.NewStreamClient(cfg.HealthStreamURL, health.WithBackoff(time.Second, time.Second))
	opened := make(chan struct{}, 1)
	client.On(health.EventConnection, func(health.Event) {
		select {
		case opened <- struct{}{}:
		default:
		}
	})

	client.Connect()
	defer client.DisconnectAll()

	select {
	case <-opened:
		fmt.Println("✅ SUCCESS (stream open)")
	case <-time.After(10 * time.Second):
		fmt.Printf("❌ ERROR: no connection to %s within 10s\n", cfg.HealthStreamURL)
	}
}

func testInsights(ctx context.Context, cfg *config.Config) {
	client := insights.NewClient(cfg.BackendURL, insights.Options{Timeout: cfg.InsightsTimeout})

	fmt.Print("🔸 Testing content optimization... ")
	result, err := client.OptimizeWithHashtags(ctx, "Excited to share our new product launch today!", "twitter")
	if err != nil {
		fmt.Printf("❌ ERROR: %v\n", err)
	} else {
		fmt.Printf("✅ SUCCESS (score %.0f, %d hashtags)\n", result.Optimization.Score, len(result.Hashtags.Hashtags))
		fmt.Printf("   📝 Sample: \"%s\"\n", result.Optimization.OptimizedContent)
	}

	for _, id := range platforms.CatalogIDs() {
		fmt.Printf("🔸 Testing analytics for %s... ", id)
		dashboard, err := client.GetAnalyticsDashboard(ctx, id)
		if err != nil {
			fmt.Printf("❌ ERROR: %v\n", err)
			continue
		}
		fmt.Printf("✅ SUCCESS (%.2fs)\n", dashboard.ProcessingTime)
	}
}

func testAuth(ctx context.Context, cfg *config.Config) {
	if cfg.AuthMode != "backend" {
		fmt.Println("🔸 Testing OAuth tokens... ⚠️  SKIPPED (AUTH_MODE is not 'backend')")
		return
	}

	auth := platforms.NewBackendAuthenticator(cfg.BackendURL, cfg.SessionID)
	for _, id := range platforms.CatalogIDs() {
		fmt.Printf("🔸 Testing OAuth token for %s... ", id)
		identity, err := auth.Authenticate(ctx, id, models.Credentials{})
		if err != nil {
			fmt.Printf("⚠️  NOT CONNECTED (%v)\n", err)
			continue
		}
		fmt.Printf("✅ CONNECTED as %s\n", identity.Username)
	}
}
