package insights

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(url, Options{Timeout: 2 * time.Second, RateLimit: 1000, Burst: 100})
	c.delay = time.Millisecond
	return c
}

const optimizeResponse = `{
	"success": true,
	"result": {
		"optimization": {
			"optimized_content": "Ship faster with AI 🚀",
			"score": 85,
			"improvements": ["Added stronger hook", "Improved call-to-action"],
			"original_length": 18,
			"optimized_length": 22
		},
		"hashtags": {
			"hashtags": [
				{"tag": "#AI", "category": "trending", "reach": "high"},
				{"tag": "#DevTools", "category": "community", "reach": "medium", "relevance_score": 0.92, "related": ["#OpenSource"]}
			],
			"strategy": "Mix broad and niche tags"
		}
	},
	"processing_time": 1.42
}`

func TestClient_OptimizeWithHashtags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/content/optimize-with-hashtags", r.URL.Path)

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "twitter", body["platform"])
		assert.Equal(t, "ship faster with ai", body["content"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(optimizeResponse))
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).OptimizeWithHashtags(context.Background(), "ship faster with ai", "Twitter")
	require.NoError(t, err)

	assert.Equal(t, "twitter", result.Platform)
	assert.Equal(t, "Ship faster with AI 🚀", result.Optimization.OptimizedContent)
	assert.Equal(t, 85.0, result.Optimization.Score)
	assert.Len(t, result.Optimization.Improvements, 2)
	assert.Equal(t, []string{"#AI", "#DevTools"}, result.Tags())
	assert.Equal(t, 1.42, result.ProcessingTime)

	// Fields the client does not model are carried through to API consumers
	devtools := result.Hashtags.Hashtags[1]
	assert.Nil(t, result.Hashtags.Hashtags[0].Extra)
	assert.JSONEq(t, `0.92`, string(devtools.Extra["relevance_score"]))
	assert.JSONEq(t, `["#OpenSource"]`, string(devtools.Extra["related"]))

	out, err := json.Marshal(devtools)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tag":"#DevTools","category":"community","reach":"medium","relevance_score":0.92,"related":["#OpenSource"]}`, string(out))
}

func TestClient_OptimizeValidation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	_, err := c.OptimizeWithHashtags(context.Background(), "   ", "twitter")
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "Please enter some content to optimize.", se.Message)

	_, err = c.OptimizeWithHashtags(context.Background(), "hello", "myspace")
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "myspace")

	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_GetAnalyticsDashboard(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/dashboard/linkedin", r.URL.Path)
		w.Write([]byte(`{"success":true,"result":{"trending":{"topics":["AI"]},"best_times":{"best_days":["Tuesday"]},"performance":{"score":72}},"processing_time":0.8}`))
	}))
	defer server.Close()

	dashboard, err := newTestClient(server.URL).GetAnalyticsDashboard(context.Background(), "linkedin")
	require.NoError(t, err)

	assert.Equal(t, "linkedin", dashboard.Platform)
	assert.JSONEq(t, `{"topics":["AI"]}`, string(dashboard.Trending))
	assert.JSONEq(t, `{"best_days":["Tuesday"]}`, string(dashboard.BestTimes))
	assert.JSONEq(t, `{"score":72}`, string(dashboard.Performance))
	assert.Equal(t, 0.8, dashboard.ProcessingTime)
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCalls   int32
		wantMessage string
	}{
		{
			name:        "server error is retried",
			status:      http.StatusInternalServerError,
			body:        `{"detail":"Internal server error: quota"}`,
			wantCalls:   3,
			wantMessage: "Analytics are unavailable right now. Please try again later.",
		},
		{
			name:        "bad request surfaces backend detail",
			status:      http.StatusBadRequest,
			body:        `{"detail":"Invalid platform. Must be one of: twitter, linkedin, instagram, facebook"}`,
			wantCalls:   1,
			wantMessage: "Invalid platform. Must be one of: twitter, linkedin, instagram, facebook",
		},
		{
			name:        "unsuccessful envelope",
			status:      http.StatusOK,
			body:        `{"success":false,"error":"model overloaded"}`,
			wantCalls:   3,
			wantMessage: "Analytics are unavailable right now. Please try again later.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL).GetAnalyticsDashboard(context.Background(), "twitter")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrExternalService)

			var se *ServiceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.wantMessage, se.Message)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestClient_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	c.attempts = 1

	for i := 0; i < 5; i++ {
		_, err := c.GetAnalyticsDashboard(context.Background(), "facebook")
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.GetAnalyticsDashboard(context.Background(), "facebook")
	var se *ServiceError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Message, "temporarily unavailable")
	assert.Equal(t, int32(5), calls.Load())
}

func TestClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(optimizeResponse))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server.URL).OptimizeWithHashtags(ctx, "hello", "twitter")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExternalService))
}
