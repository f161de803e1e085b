package monitoring

import (
	"sync"

	"github.com/postprober/dashboard-core/internal/models"
)

// Source records where a board entry came from
type Source string

const (
	SourceSnapshot Source = "snapshot"
	SourceStream   Source = "stream"
)

type boardEntry struct {
	update models.HealthUpdate
	source Source
}

// Board keeps the latest health per platform. Stream updates always win;
// snapshot values only fill platforms the stream has not reported yet.
type Board struct {
	mu      sync.RWMutex
	entries map[string]boardEntry
}

// NewBoard creates an empty board
func NewBoard() *Board {
	return &Board{entries: make(map[string]boardEntry)}
}

// ApplySnapshot fills platforms without a stream value and returns how many
// entries it wrote
func (b *Board) ApplySnapshot(updates []models.HealthUpdate) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	applied := 0
	for _, u := range updates {
		if current, ok := b.entries[u.Platform]; ok && current.source == SourceStream {
			continue
		}
		b.entries[u.Platform] = boardEntry{update: u, source: SourceSnapshot}
		applied++
	}
	return applied
}

// ApplyStream overwrites the platform's entry
func (b *Board) ApplyStream(u models.HealthUpdate) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[u.Platform] = boardEntry{update: u, source: SourceStream}
}

// Get returns the latest health for platform and where it came from
func (b *Board) Get(platform string) (models.HealthUpdate, Source, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.entries[platform]
	return entry.update, entry.source, ok
}

// Retain drops every platform not in keep
func (b *Board) Retain(keep map[string]bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for platform := range b.entries {
		if !keep[platform] {
			delete(b.entries, platform)
		}
	}
}
