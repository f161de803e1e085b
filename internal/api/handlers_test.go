package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/postprober/dashboard-core/internal/health"
	"github.com/postprober/dashboard-core/internal/insights"
	"github.com/postprober/dashboard-core/internal/models"
	"github.com/postprober/dashboard-core/internal/monitoring"
	"github.com/postprober/dashboard-core/internal/platforms"
	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMonitor is a mock implementation of the health monitor
type MockMonitor struct {
	mock.Mock
}

func (m *MockMonitor) CurrentHealth() []models.HealthUpdate {
	args := m.Called()
	return args.Get(0).([]models.HealthUpdate)
}

func (m *MockMonitor) Health(platform string) (models.HealthUpdate, bool) {
	args := m.Called(platform)
	return args.Get(0).(models.HealthUpdate), args.Bool(1)
}

func (m *MockMonitor) RecentAlerts() []models.Alert {
	args := m.Called()
	return args.Get(0).([]models.Alert)
}

func (m *MockMonitor) RefreshSnapshot(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockMonitor) StreamState() health.State {
	args := m.Called()
	return args.Get(0).(health.State)
}

func (m *MockMonitor) GetMetrics() string {
	args := m.Called()
	return args.String(0)
}

// MockInsights is a mock implementation of the insights client
type MockInsights struct {
	mock.Mock
}

func (m *MockInsights) OptimizeWithHashtags(ctx context.Context, content, platform string) (*insights.OptimizeResult, error) {
	args := m.Called(ctx, content, platform)
	result, _ := args.Get(0).(*insights.OptimizeResult)
	return result, args.Error(1)
}

func (m *MockInsights) GetAnalyticsDashboard(ctx context.Context, platform string) (*insights.AnalyticsDashboard, error) {
	args := m.Called(ctx, platform)
	result, _ := args.Get(0).(*insights.AnalyticsDashboard)
	return result, args.Error(1)
}

func newTestServer(t *testing.T) (*Server, *platforms.Registry, *MockMonitor, *MockInsights) {
	t.Helper()
	registry, err := platforms.NewRegistry(storage.NewMemoryStorage(), platforms.StaticAuthenticator{})
	require.NoError(t, err)

	monitor := &MockMonitor{}
	insightsClient := &MockInsights{}
	return NewServer(registry, monitor, insightsClient, prometheus.NewRegistry()), registry, monitor, insightsClient
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestConnectDisconnectFlow(t *testing.T) {
	s, _, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/platforms/twitter/connect", `{"username":"demo"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var platform models.Platform
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &platform))
	assert.Equal(t, models.StatusConnected, platform.Status)
	assert.Equal(t, "demo", platform.Username)

	rec = do(t, s, http.MethodGet, "/api/platforms/connected", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Platforms []models.Platform `json:"platforms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Platforms, 1)
	assert.Equal(t, "twitter", list.Platforms[0].ID)

	rec = do(t, s, http.MethodPost, "/api/platforms/twitter/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var disconnected models.Platform
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disconnected))
	assert.Equal(t, "twitter", disconnected.ID)
	assert.Equal(t, models.StatusDisconnected, disconnected.Status)
	assert.Empty(t, disconnected.Username)
	assert.Nil(t, disconnected.ConnectedAt)

	rec = do(t, s, http.MethodGet, "/api/platforms", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Platforms, 4)
}

func TestConnectErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{name: "unknown platform", path: "/api/platforms/myspace/connect", body: `{"username":"tom"}`, status: http.StatusNotFound},
		{name: "missing username", path: "/api/platforms/linkedin/connect", body: `{}`, status: http.StatusBadRequest},
		{name: "invalid json", path: "/api/platforms/linkedin/connect", body: `{"username":`, status: http.StatusBadRequest},
		{name: "unknown disconnect", path: "/api/platforms/myspace/disconnect", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _, _ := newTestServer(t)
			rec := do(t, s, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestOnboarding(t *testing.T) {
	s, registry, _, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/onboarding", "")
	assert.JSONEq(t, `{"onboarding_complete":false,"first_time_user":true}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/onboarding/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"onboarding_complete":true,"first_time_user":false}`, rec.Body.String())
	assert.True(t, registry.IsOnboardingComplete())
}

func TestHealthEndpoints(t *testing.T) {
	s, _, monitor, _ := newTestServer(t)
	monitor.On("StreamState").Return(health.StateOpen)
	monitor.On("CurrentHealth").Return([]models.HealthUpdate{{Platform: "twitter", Status: models.HealthWarning}})
	monitor.On("RecentAlerts").Return([]models.Alert{{ID: "a1", Platform: "twitter", Severity: models.SeverityWarning}})
	monitor.On("Health", "twitter").Return(models.HealthUpdate{Platform: "twitter", Status: models.HealthWarning}, true)
	monitor.On("Health", "facebook").Return(models.HealthUpdate{}, false)
	monitor.On("GetMetrics").Return(`{"stream_state":"open"}`)

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stream":"open"`)

	rec = do(t, s, http.MethodGet, "/api/health/current", "")
	assert.Contains(t, rec.Body.String(), `"status":"warning"`)

	rec = do(t, s, http.MethodGet, "/api/health/current/twitter", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, s, http.MethodGet, "/api/health/current/facebook", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/health/alerts", "")
	assert.Contains(t, rec.Body.String(), `"id":"a1"`)

	rec = do(t, s, http.MethodGet, "/api/health/stream", "")
	assert.JSONEq(t, `{"state":"open","connected":true}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/stats", "")
	assert.JSONEq(t, `{"stream_state":"open"}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefreshSnapshot(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "refreshed", status: http.StatusOK},
		{name: "no source", err: monitoring.ErrNoSnapshotSource, status: http.StatusServiceUnavailable},
		{name: "backend down", err: errors.New("connection refused"), status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, monitor, _ := newTestServer(t)
			monitor.On("RefreshSnapshot", mock.Anything).Return(tt.err)
			monitor.On("CurrentHealth").Return([]models.HealthUpdate{})
			monitor.On("StreamState").Return(health.StateIdle)

			rec := do(t, s, http.MethodPost, "/api/health/refresh", "")
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestInsightsEndpoints(t *testing.T) {
	s, _, _, client := newTestServer(t)

	client.On("OptimizeWithHashtags", mock.Anything, "hello world", "twitter").Return(&insights.OptimizeResult{
		Platform:     "twitter",
		Optimization: insights.Optimization{OptimizedContent: "Hello, world!", Score: 80},
	}, nil)
	client.On("OptimizeWithHashtags", mock.Anything, "", "twitter").Return(nil, &insights.ServiceError{Op: "optimize content", Message: "Please enter some content to optimize."})
	client.On("GetAnalyticsDashboard", mock.Anything, "linkedin").Return(nil, &insights.ServiceError{
		Op:      "load analytics",
		Message: "Analytics are unavailable right now. Please try again later.",
		Cause:   errors.New("status 500"),
	})

	rec := do(t, s, http.MethodPost, "/api/content/optimize", `{"content":"hello world","platform":"twitter"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"optimized_content":"Hello, world!"`)

	rec = do(t, s, http.MethodPost, "/api/content/optimize", `{"content":"","platform":"twitter"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Please enter some content to optimize."}`, rec.Body.String())

	rec = do(t, s, http.MethodGet, "/api/analytics/linkedin", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Analytics are unavailable right now. Please try again later."}`, rec.Body.String())
}
