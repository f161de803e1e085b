package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		StorageBackend:        "sqlite",
		DataDir:               "./data",
		AuthMode:              "static",
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     30 * time.Second,
		AlertBufferSize:       10,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "memory backend", mutate: func(c *Config) { c.StorageBackend = "memory"; c.DataDir = "" }},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "s3" }, wantErr: "STORAGE_BACKEND"},
		{name: "azure without account", mutate: func(c *Config) { c.StorageBackend = "azure" }, wantErr: "AZURE_STORAGE_ACCOUNT"},
		{name: "redis without address", mutate: func(c *Config) { c.StorageBackend = "redis" }, wantErr: "REDIS_ADDR"},
		{name: "unknown auth mode", mutate: func(c *Config) { c.AuthMode = "oauth" }, wantErr: "AUTH_MODE"},
		{name: "backend auth without session", mutate: func(c *Config) { c.AuthMode = "backend" }, wantErr: "SESSION_ID"},
		{name: "max below initial", mutate: func(c *Config) { c.ReconnectMaxDelay = 500 * time.Millisecond }, wantErr: "RECONNECT_MAX_DELAY"},
		{name: "empty alert buffer", mutate: func(c *Config) { c.AlertBufferSize = 0 }, wantErr: "ALERT_BUFFER_SIZE"},
		{name: "email without smtp", mutate: func(c *Config) { c.NotificationEmail = "ops@example.com" }, wantErr: "SMTP"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "memory")
	t.Setenv("RECONNECT_INITIAL_DELAY", "2s")
	t.Setenv("ALERT_COOLDOWN", "5m")
	t.Setenv("INSIGHTS_RATE_LIMIT", "2.5")
	t.Setenv("TEAMS_WEBHOOK_URL", "https://example.com/hook")

	cfg, err := Load()
	if !assert.NoError(t, err) {
		return
	}

	assert.Equal(t, "memory", cfg.StorageBackend)
	assert.Equal(t, 2*time.Second, cfg.ReconnectInitialDelay)
	assert.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	assert.Equal(t, 5*time.Minute, cfg.AlertCooldown)
	assert.Equal(t, 2.5, cfg.InsightsRateLimit)
	assert.True(t, cfg.NotificationsEnabled())
}
