package webhook

import (
	"sync"
	"time"
)

// deduper remembers alert identity keys for a window and flags repeats.
// Expired keys are swept opportunistically, at most once per window.
type deduper struct {
	mu        sync.Mutex
	window    time.Duration
	seen      map[string]time.Time
	lastSweep time.Time
	now       func() time.Time
}

func newDeduper(window time.Duration) *deduper {
	return &deduper{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Seen reports whether key was recorded within the window; a fresh key is
// recorded with the current timestamp.
func (d *deduper) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if now.Sub(d.lastSweep) >= d.window {
		for k, ts := range d.seen {
			if now.Sub(ts) > d.window {
				delete(d.seen, k)
			}
		}
		d.lastSweep = now
	}

	if ts, ok := d.seen[key]; ok && now.Sub(ts) <= d.window {
		return true
	}
	d.seen[key] = now
	return false
}
