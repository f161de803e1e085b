package health

import (
	"testing"
	"time"

	"github.com/postprober/dashboard-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		frame       string
		wantErr     bool
		wantTypes   []EventType
		wantReply   bool
		wantDropped int
	}{
		{
			name:      "health update list",
			frame:     `{"type":"health_update","platforms":[{"platform":"twitter","status":"healthy","response_time":120},{"platform":"linkedin","status":"degraded"}]}`,
			wantTypes: []EventType{EventHealthUpdate, EventHealthUpdate},
		},
		{
			name:      "flat health update",
			frame:     `{"type":"health_update","platform":"facebook","status":"down","error_rate":12.5}`,
			wantTypes: []EventType{EventHealthUpdate},
		},
		{
			name:        "list with one bad entry",
			frame:       `{"type":"health_update","platforms":[{"platform":"twitter","status":"healthy"},{"platform":"linkedin","status":"on fire"}]}`,
			wantTypes:   []EventType{EventHealthUpdate},
			wantDropped: 1,
		},
		{
			name:    "list with only bad entries",
			frame:   `{"type":"health_update","platforms":[{"status":"healthy"}]}`,
			wantErr: true,
		},
		{
			name:      "nested alert",
			frame:     `{"type":"health_alert","alert":{"platform":"twitter","severity":"critical","message":"API down"}}`,
			wantTypes: []EventType{EventHealthAlert},
		},
		{
			name:      "flat alert",
			frame:     `{"type":"health_alert","platform":"instagram","severity":"warning","message":"slow"}`,
			wantTypes: []EventType{EventHealthAlert},
		},
		{
			name:    "alert with unknown severity",
			frame:   `{"type":"health_alert","alert":{"platform":"twitter","severity":"meh"}}`,
			wantErr: true,
		},
		{
			name:      "history",
			frame:     `{"type":"history","alerts":[{"platform":"twitter","severity":"info","message":"recovered"}]}`,
			wantTypes: []EventType{EventHistory},
		},
		{
			name:      "ping",
			frame:     `{"type":"ping"}`,
			wantReply: true,
		},
		{
			name:  "server welcome",
			frame: `{"type":"connection","message":"Connected to health monitor"}`,
		},
		{name: "not json", frame: `hello`, wantErr: true},
		{name: "missing type", frame: `{"platform":"twitter"}`, wantErr: true},
		{name: "unknown type", frame: `{"type":"weather"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := decodeFrame([]byte(tt.frame), now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedFrame)
				return
			}
			require.NoError(t, err)

			var types []EventType
			for _, e := range out.events {
				types = append(types, e.Type)
			}
			assert.Equal(t, tt.wantTypes, types)
			assert.Equal(t, tt.wantReply, out.reply != nil)
			assert.Len(t, out.dropped, tt.wantDropped)
		})
	}
}

func TestDecodeFrame_HealthFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := `{"type":"health_update","platforms":[{"platform":"Twitter","status":"degraded","response_time":850.5,"error_rate":3.2,"rate_limit_used":450,"rate_limit_total":500,"last_check":"2026-03-01T11:59:30.123456","details":{"endpoint":"/2/users/me"}}]}`

	out, err := decodeFrame([]byte(frame), now)
	require.NoError(t, err)
	require.Len(t, out.events, 1)

	update := out.events[0].Update
	require.NotNil(t, update)
	assert.Equal(t, "twitter", update.Platform)
	assert.Equal(t, models.HealthWarning, update.Status)
	assert.Equal(t, 850.5, update.ResponseTimeMS)
	assert.Equal(t, 3.2, update.ErrorRate)
	assert.Equal(t, 450, update.RateLimitUsed)
	assert.Equal(t, 500, update.RateLimitTotal)
	assert.Equal(t, 90.0, update.RateLimitPercent())
	assert.Equal(t, time.Date(2026, 3, 1, 11, 59, 30, 123456000, time.UTC), update.LastCheck)
	assert.JSONEq(t, `{"endpoint":"/2/users/me"}`, update.Details)
}

func TestDecodeFrame_AlertFields(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	frame := `{"type":"health_alert","alert":{"id":"a-1","platform":"linkedin","severity":"CRITICAL","message":"Token expired","recommended_action":"Reconnect LinkedIn","status":"down"}}`

	out, err := decodeFrame([]byte(frame), now)
	require.NoError(t, err)
	require.Len(t, out.events, 1)

	alert := out.events[0].Alert
	require.NotNil(t, alert)
	assert.Equal(t, "a-1", alert.ID)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Reconnect LinkedIn", alert.RecommendedAction)
	assert.Equal(t, now, alert.Timestamp)
}

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second)

	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_Defaults(t *testing.T) {
	b := NewBackoff(0, 0)
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, time.Second, b.Next())
}
