package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/go-resty/resty/v2"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/sirupsen/logrus"
)

// SnapshotClient fetches the monitor's current health table over HTTP
type SnapshotClient struct {
	baseURL  string
	client   *resty.Client
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

type snapshotResponse struct {
	Success   bool              `json:"success"`
	Platforms []json.RawMessage `json:"platforms"`
	Error     string            `json:"error,omitempty"`
}

// NewSnapshotClient creates a client for the backend at baseURL
func NewSnapshotClient(baseURL string) *SnapshotClient {
	return &SnapshotClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   resty.New().SetTimeout(10*time.Second).SetHeader("User-Agent", "PostProber-Dashboard/1.0"),
		attempts: 3,
		delay:    500 * time.Millisecond,
		now:      time.Now,
	}
}

// Fetch returns one HealthUpdate per platform the monitor reports. Entries
// that fail to decode are skipped.
func (s *SnapshotClient) Fetch(ctx context.Context) ([]models.HealthUpdate, error) {
	var body []byte

	err := retry.New(
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	).Do(func() error {
		resp, err := s.client.R().
			SetContext(ctx).
			Get(s.baseURL + "/api/health/status")
		if err != nil {
			return fmt.Errorf("health snapshot request failed: %w", err)
		}

		switch {
		case resp.StatusCode() == http.StatusOK:
			body = resp.Body()
			return nil
		case resp.StatusCode() >= 500:
			return fmt.Errorf("health snapshot returned status %d", resp.StatusCode())
		default:
			return retry.Unrecoverable(fmt.Errorf("health snapshot returned status %d", resp.StatusCode()))
		}
	})
	if err != nil {
		return nil, err
	}

	var parsed snapshotResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse health snapshot: %w", err)
	}
	if !parsed.Success {
		msg := parsed.Error
		if msg == "" {
			msg = "monitor reported failure"
		}
		return nil, errors.New("health snapshot: " + msg)
	}

	now := s.now().UTC()
	updates := make([]models.HealthUpdate, 0, len(parsed.Platforms))
	for _, raw := range parsed.Platforms {
		var w wireHealth
		if err := json.Unmarshal(raw, &w); err != nil {
			logrus.Warnf("Skipping snapshot entry: %v", err)
			continue
		}
		update, err := w.toUpdate(now)
		if err != nil {
			logrus.Warnf("Skipping snapshot entry: %v", err)
			continue
		}
		updates = append(updates, update)
	}

	logrus.Debugf("Fetched health snapshot with %d platforms", len(updates))
	return updates, nil
}
