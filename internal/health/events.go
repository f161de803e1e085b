package health

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postprober/dashboard-core/internal/models"
)

// EventType identifies what a stream event carries
type EventType string

const (
	EventConnection   EventType = "connection"
	EventDisconnect   EventType = "disconnect"
	EventHealthUpdate EventType = "health_update"
	EventHealthAlert  EventType = "health_alert"
	EventHistory      EventType = "history"
)

// Event is delivered to handlers registered with On
type Event struct {
	Type   EventType
	Update *models.HealthUpdate // health_update
	Alert  *models.Alert        // health_alert
	Alerts []models.Alert       // history, oldest first
	Err    error                // disconnect
	At     time.Time
}

// Handler receives stream events on the client's goroutine
type Handler func(Event)

// ErrMalformedFrame marks an inbound frame that could not be decoded
var ErrMalformedFrame = errors.New("malformed frame")

type frame struct {
	Type      string            `json:"type"`
	Message   string            `json:"message,omitempty"`
	Platforms []json.RawMessage `json:"platforms,omitempty"`
	Alert     json.RawMessage   `json:"alert,omitempty"`
	Alerts    []json.RawMessage `json:"alerts,omitempty"`
}

// wireHealth is the monitor's per-platform shape, shared by the stream and
// the snapshot endpoint
type wireHealth struct {
	Platform       string          `json:"platform"`
	Status         string          `json:"status"`
	ResponseTime   float64         `json:"response_time"`
	ErrorRate      float64         `json:"error_rate"`
	RateLimitUsed  float64         `json:"rate_limit_used"`
	RateLimitTotal float64         `json:"rate_limit_total"`
	LastCheck      string          `json:"last_check"`
	Details        json.RawMessage `json:"details"`
}

type wireAlert struct {
	ID                string `json:"id"`
	Platform          string `json:"platform"`
	Severity          string `json:"severity"`
	Message           string `json:"message"`
	RecommendedAction string `json:"recommended_action"`
	Status            string `json:"status"`
	Timestamp         string `json:"timestamp"`
}

func (w wireHealth) toUpdate(now time.Time) (models.HealthUpdate, error) {
	if strings.TrimSpace(w.Platform) == "" {
		return models.HealthUpdate{}, fmt.Errorf("%w: health entry without platform", ErrMalformedFrame)
	}
	status, err := models.ParseHealthStatus(w.Status)
	if err != nil {
		return models.HealthUpdate{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return models.HealthUpdate{
		Platform:       strings.ToLower(w.Platform),
		Status:         status,
		ResponseTimeMS: w.ResponseTime,
		ErrorRate:      w.ErrorRate,
		RateLimitUsed:  int(w.RateLimitUsed),
		RateLimitTotal: int(w.RateLimitTotal),
		LastCheck:      parseTimestamp(w.LastCheck, now),
		Details:        detailsString(w.Details),
	}, nil
}

func (w wireAlert) toAlert(now time.Time) (models.Alert, error) {
	if strings.TrimSpace(w.Platform) == "" {
		return models.Alert{}, fmt.Errorf("%w: alert without platform", ErrMalformedFrame)
	}
	severity, err := models.ParseSeverity(w.Severity)
	if err != nil {
		return models.Alert{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return models.Alert{
		ID:                w.ID,
		Platform:          strings.ToLower(w.Platform),
		Severity:          severity,
		Message:           w.Message,
		RecommendedAction: w.RecommendedAction,
		Status:            w.Status,
		Timestamp:         parseTimestamp(w.Timestamp, now),
	}, nil
}

// The monitor emits naive ISO timestamps; those are taken as UTC
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

func detailsString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// decoded is the outcome of one inbound frame
type decoded struct {
	events  []Event
	reply   []byte
	dropped []error // entries skipped inside an otherwise valid frame
}

var pongFrame = []byte(`{"type":"pong"}`)

// decodeFrame turns one text frame into events. A frame that cannot be read
// at all returns an error; bad entries inside a list are reported in dropped.
func decodeFrame(data []byte, now time.Time) (decoded, error) {
	var out decoded

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch f.Type {
	case "ping":
		out.reply = pongFrame

	case "pong", string(EventConnection):
		// keep-alive echo and server welcome carry nothing for handlers

	case string(EventHealthUpdate):
		entries := f.Platforms
		if entries == nil {
			entries = []json.RawMessage{data}
		}
		for _, raw := range entries {
			var w wireHealth
			if err := json.Unmarshal(raw, &w); err != nil {
				out.dropped = append(out.dropped, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
				continue
			}
			update, err := w.toUpdate(now)
			if err != nil {
				out.dropped = append(out.dropped, err)
				continue
			}
			out.events = append(out.events, Event{Type: EventHealthUpdate, Update: &update, At: now})
		}
		if len(out.events) == 0 && len(out.dropped) > 0 {
			return decoded{}, out.dropped[0]
		}

	case string(EventHealthAlert):
		raw := f.Alert
		if len(raw) == 0 || string(raw) == "null" {
			raw = data
		}
		var w wireAlert
		if err := json.Unmarshal(raw, &w); err != nil {
			return decoded{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		alert, err := w.toAlert(now)
		if err != nil {
			return decoded{}, err
		}
		out.events = append(out.events, Event{Type: EventHealthAlert, Alert: &alert, At: now})

	case string(EventHistory):
		alerts := make([]models.Alert, 0, len(f.Alerts))
		for _, raw := range f.Alerts {
			var w wireAlert
			if err := json.Unmarshal(raw, &w); err != nil {
				out.dropped = append(out.dropped, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
				continue
			}
			alert, err := w.toAlert(now)
			if err != nil {
				out.dropped = append(out.dropped, err)
				continue
			}
			alerts = append(alerts, alert)
		}
		out.events = append(out.events, Event{Type: EventHistory, Alerts: alerts, At: now})

	case "":
		return decoded{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)

	default:
		return decoded{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, f.Type)
	}

	return out, nil
}
