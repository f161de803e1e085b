package monitoring

import (
	"sync"
	"time"

	"github.com/postprober/dashboard-core/internal/models"
)

// alertGate decides which alerts are forwarded to notification channels.
// Critical alerts always pass, a severity change always passes, and a repeat
// of the same severity passes only once the cooldown has elapsed.
type alertGate struct {
	mu       sync.Mutex
	cooldown time.Duration
	severity map[string]models.Severity
	sentAt   map[string]time.Time
}

func newAlertGate(cooldown time.Duration) *alertGate {
	return &alertGate{
		cooldown: cooldown,
		severity: make(map[string]models.Severity),
		sentAt:   make(map[string]time.Time),
	}
}

// allow reports whether an alert should go out and records it if so
func (g *alertGate) allow(platform string, severity models.Severity, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	send := false
	switch last, seen := g.severity[platform]; {
	case severity == models.SeverityCritical:
		send = true
	case !seen || last != severity:
		send = true
	default:
		sentAt, ok := g.sentAt[platform]
		send = !ok || now.Sub(sentAt) >= g.cooldown
	}

	if send {
		g.severity[platform] = severity
		g.sentAt[platform] = now
	}
	return send
}

// clear forgets the platform once it has recovered
func (g *alertGate) clear(platform string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.severity, platform)
	delete(g.sentAt, platform)
}
