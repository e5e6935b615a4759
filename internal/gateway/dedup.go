package gateway

import (
	"sync"
	"time"
)

// Deduper drops re-delivered events. Upstream delivery is at-least-once, so
// an event id seen within the window is a no-op, not an error.
type Deduper struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDeduper(window time.Duration) *Deduper {
	if window <= 0 {
		window = 10 * time.Minute
	}
	return &Deduper{
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// Seen records the event id and reports whether it was already delivered
// within the window.
func (d *Deduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for old, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, old)
		}
	}
	if at, present := d.seen[id]; present && now.Sub(at) <= d.window {
		return true
	}
	d.seen[id] = now
	return false
}
