package monitoring

import (
	"sync"

	"github.com/postprober/dashboard-core/internal/models"
)

// DefaultAlertCapacity is how many recent alerts the dashboard keeps
const DefaultAlertCapacity = 10

// AlertBuffer holds the most recent alerts, newest first, bounded by capacity
type AlertBuffer struct {
	mu       sync.Mutex
	capacity int
	items    []models.Alert
}

// NewAlertBuffer creates a buffer holding at most capacity alerts
func NewAlertBuffer(capacity int) *AlertBuffer {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &AlertBuffer{capacity: capacity, items: make([]models.Alert, 0, capacity)}
}

// Push inserts alert at the front, evicting the oldest when full
func (b *AlertBuffer) Push(alert models.Alert) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, models.Alert{})
	copy(b.items[1:], b.items)
	b.items[0] = alert
	if len(b.items) > b.capacity {
		b.items = b.items[:b.capacity]
	}
}

// Seed fills an empty buffer from alerts given oldest first. It returns
// false and changes nothing when the buffer already holds alerts.
func (b *AlertBuffer) Seed(alerts []models.Alert) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) > 0 {
		return false
	}
	for i := len(alerts) - 1; i >= 0 && len(b.items) < b.capacity; i-- {
		b.items = append(b.items, alerts[i])
	}
	return true
}

// Items returns a copy, newest first
func (b *AlertBuffer) Items() []models.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Alert, len(b.items))
	copy(out, b.items)
	return out
}

// Len returns the number of alerts held
func (b *AlertBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Capacity returns the maximum number of alerts held
func (b *AlertBuffer) Capacity() int {
	return b.capacity
}
