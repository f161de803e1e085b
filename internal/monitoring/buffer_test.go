package monitoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/postprober/dashboard-core/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAlertBuffer_KeepsNewest(t *testing.T) {
	buffer := NewAlertBuffer(10)
	for i := 1; i <= 12; i++ {
		buffer.Push(models.Alert{ID: fmt.Sprintf("a%d", i)})
	}

	items := buffer.Items()
	assert.Len(t, items, 10)
	assert.Equal(t, "a12", items[0].ID)
	assert.Equal(t, "a3", items[9].ID)
}

func TestAlertBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultAlertCapacity, NewAlertBuffer(0).Capacity())
}

func TestAlertBuffer_Seed(t *testing.T) {
	buffer := NewAlertBuffer(3)
	seeded := buffer.Seed([]models.Alert{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}})
	assert.True(t, seeded)
	assert.Equal(t, []models.Alert{{ID: "4"}, {ID: "3"}, {ID: "2"}}, buffer.Items())

	assert.False(t, buffer.Seed([]models.Alert{{ID: "5"}}))
	assert.Equal(t, 3, buffer.Len())
}

func TestBoard_StreamWins(t *testing.T) {
	board := NewBoard()

	board.ApplySnapshot([]models.HealthUpdate{{Platform: "twitter", Status: models.HealthHealthy}})
	_, source, ok := board.Get("twitter")
	assert.True(t, ok)
	assert.Equal(t, SourceSnapshot, source)

	board.ApplySnapshot([]models.HealthUpdate{{Platform: "twitter", Status: models.HealthCritical}})
	u, _, _ := board.Get("twitter")
	assert.Equal(t, models.HealthCritical, u.Status)

	board.ApplyStream(models.HealthUpdate{Platform: "twitter", Status: models.HealthWarning})
	assert.Equal(t, 0, board.ApplySnapshot([]models.HealthUpdate{{Platform: "twitter", Status: models.HealthHealthy}}))
	u, source, _ = board.Get("twitter")
	assert.Equal(t, models.HealthWarning, u.Status)
	assert.Equal(t, SourceStream, source)

	board.Retain(map[string]bool{"linkedin": true})
	_, _, ok = board.Get("twitter")
	assert.False(t, ok)
}

func TestAlertGate(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		steps    []models.Severity
		offsets  []time.Duration
		expected []bool
	}{
		{
			name:     "critical always passes",
			steps:    []models.Severity{models.SeverityCritical, models.SeverityCritical, models.SeverityCritical},
			offsets:  []time.Duration{0, time.Minute, 2 * time.Minute},
			expected: []bool{true, true, true},
		},
		{
			name:     "repeat warning waits for cooldown",
			steps:    []models.Severity{models.SeverityWarning, models.SeverityWarning, models.SeverityWarning},
			offsets:  []time.Duration{0, 14 * time.Minute, 15 * time.Minute},
			expected: []bool{true, false, true},
		},
		{
			name:     "severity change passes",
			steps:    []models.Severity{models.SeverityWarning, models.SeverityCritical, models.SeverityWarning},
			offsets:  []time.Duration{0, time.Minute, 2 * time.Minute},
			expected: []bool{true, true, true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newAlertGate(15 * time.Minute)
			for i, severity := range tt.steps {
				got := gate.allow("twitter", severity, start.Add(tt.offsets[i]))
				assert.Equal(t, tt.expected[i], got, "step %d", i)
			}
		})
	}
}

func TestAlertGate_ClearResets(t *testing.T) {
	gate := newAlertGate(15 * time.Minute)
	now := time.Now()

	assert.True(t, gate.allow("linkedin", models.SeverityWarning, now))
	assert.False(t, gate.allow("linkedin", models.SeverityWarning, now))
	gate.clear("linkedin")
	assert.True(t, gate.allow("linkedin", models.SeverityWarning, now))
	assert.True(t, gate.allow("twitter", models.SeverityWarning, now))
}
