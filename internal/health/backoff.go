package health

import "time"

// Backoff yields exponentially growing reconnect delays: initial, 2x, 4x and
// so on, never above max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// NewBackoff returns a Backoff starting at initial
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{Initial: initial, Max: max, next: initial}
}

// Next returns the delay to wait now and advances the sequence
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.Max || b.next <= 0 {
		b.next = b.Max
	}
	return d
}

// Reset starts the sequence over, called after every successful open
func (b *Backoff) Reset() {
	b.next = b.Initial
}
