package models

import (
	"fmt"
	"strings"
	"time"
)

// PlatformStatus is the connection state of a platform
type PlatformStatus string

const (
	StatusDisconnected PlatformStatus = "disconnected"
	StatusConnected    PlatformStatus = "connected"
)

// Platform represents a social media service the dashboard can post to or monitor
type Platform struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon"`
	Color       string         `json:"color"`
	Status      PlatformStatus `json:"status"`
	Username    string         `json:"username,omitempty"` // only set while connected
	UserID      string         `json:"user_id,omitempty"`
	ConnectedAt *time.Time     `json:"connected_at,omitempty"`
}

// IsConnected reports whether the platform has linked credentials
func (p Platform) IsConnected() bool {
	return p.Status == StatusConnected
}

// Credentials are supplied by the user when linking a platform
type Credentials struct {
	Username    string            `json:"username"`
	AccessToken string            `json:"access_token,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// HealthStatus is the operational state reported for a platform
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
)

// ParseHealthStatus accepts both the dashboard vocabulary and the monitor's
// healthy/degraded/down vocabulary.
func ParseHealthStatus(raw string) (HealthStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "healthy":
		return HealthHealthy, nil
	case "warning", "degraded":
		return HealthWarning, nil
	case "critical", "down":
		return HealthCritical, nil
	default:
		return "", fmt.Errorf("unknown health status %q", raw)
	}
}

// Severity classifies health alerts
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ParseSeverity validates an alert severity
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityInfo:
		return SeverityInfo, nil
	default:
		return "", fmt.Errorf("unknown alert severity %q", raw)
	}
}

// HealthUpdate is the latest health measurement for one platform
type HealthUpdate struct {
	Platform       string       `json:"platform"`
	Status         HealthStatus `json:"status"`
	ResponseTimeMS float64      `json:"response_time"`
	ErrorRate      float64      `json:"error_rate"`
	RateLimitUsed  int          `json:"rate_limit_used"`
	RateLimitTotal int          `json:"rate_limit_total"`
	LastCheck      time.Time    `json:"last_check"`
	Details        string       `json:"details,omitempty"`
}

// RateLimitPercent returns the used share of the rate limit clamped to [0, 100].
// Display only: the raw counters are kept as received.
func (h HealthUpdate) RateLimitPercent() float64 {
	if h.RateLimitTotal <= 0 {
		return 0
	}
	pct := float64(h.RateLimitUsed) / float64(h.RateLimitTotal) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Alert represents a health notification about a platform
type Alert struct {
	ID                string    `json:"id"`
	Platform          string    `json:"platform"`
	Severity          Severity  `json:"severity"`
	Message           string    `json:"message"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	Status            string    `json:"status,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Report represents a periodic health digest
type Report struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Period      string                 `json:"period"`
	Platforms   []HealthUpdate         `json:"platforms"`
	Alerts      []Alert                `json:"alerts"`
	Summary     map[string]interface{} `json:"summary"`
}
