package utils

import (
	"sync"
	"time"
)

// Deduplicator remembers message IDs for a window so redelivered messages can be ignored
type Deduplicator struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	window  time.Duration
	maxSize int
	now     func() time.Time
}

// NewDeduplicator creates a Deduplicator. Entries older than window are forgotten.
func NewDeduplicator(window time.Duration) *Deduplicator {
	return &Deduplicator{
		seen:    make(map[string]time.Time),
		window:  window,
		maxSize: 10000,
		now:     time.Now,
	}
}

// IsDuplicate checks if a message ID has been processed within the window.
// Returns true if the message is a duplicate and should be ignored. Empty IDs are never duplicates.
func (d *Deduplicator) IsDuplicate(msgID string) bool {
	if msgID == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[msgID]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[msgID] = now

	// Cleanup old entries if map gets too big
	if len(d.seen) > d.maxSize {
		for k, v := range d.seen {
			if now.Sub(v) > d.window {
				delete(d.seen, k)
			}
		}
	}
	return false
}

// Len returns the number of remembered IDs
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
