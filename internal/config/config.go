package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Storage configuration
	StorageBackend   string // "sqlite", "azure", "redis" or "memory"
	DataDir          string
	StorageAccount   string
	StorageContainer string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisKeyPrefix   string

	// Backend endpoints
	BackendURL      string
	HealthStreamURL string
	SessionID       string
	AuthMode        string // "static" or "backend"

	// Health stream configuration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
	AlertBufferSize       int
	AlertCooldown         time.Duration

	// Schedule configuration
	SnapshotSchedule string
	DigestSchedule   string

	// External insights services
	InsightsTimeout   time.Duration
	InsightsRateLimit float64
	InsightsBurst     int

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		StorageBackend:   getEnv("STORAGE_BACKEND", "sqlite"),
		DataDir:          getEnv("DATA_DIR", "./data"),
		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "postprober"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getIntEnv("REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "postprober:"),

		BackendURL:      getEnv("BACKEND_URL", "http://localhost:8000"),
		HealthStreamURL: getEnv("HEALTH_STREAM_URL", "ws://localhost:8000/ws/health"),
		SessionID:       getEnv("SESSION_ID", ""),
		AuthMode:        getEnv("AUTH_MODE", "static"),

		ReconnectInitialDelay: getDurationEnv("RECONNECT_INITIAL_DELAY", time.Second),
		ReconnectMaxDelay:     getDurationEnv("RECONNECT_MAX_DELAY", 30*time.Second),
		AlertBufferSize:       getIntEnv("ALERT_BUFFER_SIZE", 10),
		AlertCooldown:         getDurationEnv("ALERT_COOLDOWN", 15*time.Minute),

		// Refresh the snapshot every 5 minutes, digest daily at 9 AM
		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "0 */5 * * * *"),
		DigestSchedule:   getEnv("DIGEST_SCHEDULE", "0 0 9 * * *"),

		InsightsTimeout:   getDurationEnv("INSIGHTS_TIMEOUT", 30*time.Second),
		InsightsRateLimit: getFloatEnv("INSIGHTS_RATE_LIMIT", 5),
		InsightsBurst:     getIntEnv("INSIGHTS_BURST", 5),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case "sqlite":
		if c.DataDir == "" {
			return fmt.Errorf("DATA_DIR is required for the sqlite storage backend")
		}
	case "azure":
		if c.StorageAccount == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required for the azure storage backend")
		}
	case "redis":
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis storage backend")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_BACKEND must be 'sqlite', 'azure', 'redis' or 'memory'")
	}

	if c.AuthMode != "static" && c.AuthMode != "backend" {
		return fmt.Errorf("AUTH_MODE must be 'static' or 'backend'")
	}

	if c.AuthMode == "backend" && c.SessionID == "" {
		return fmt.Errorf("SESSION_ID is required when AUTH_MODE is 'backend'")
	}

	if c.ReconnectInitialDelay <= 0 || c.ReconnectMaxDelay < c.ReconnectInitialDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must be >= RECONNECT_INITIAL_DELAY > 0")
	}

	if c.AlertBufferSize <= 0 {
		return fmt.Errorf("ALERT_BUFFER_SIZE must be positive")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// NotificationsEnabled reports whether at least one outbound channel is configured
func (c *Config) NotificationsEnabled() bool {
	return c.TeamsWebhookURL != "" || c.NotificationEmail != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
