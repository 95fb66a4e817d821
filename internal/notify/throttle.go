package notify

import (
	"sync"
	"time"
)

// Throttle tracks the last time each key was allowed through, so repeated
// notifications for the same condition (e.g. the same risk pause) don't
// spam the chat every cycle.
type Throttle struct {
	mu              sync.Mutex
	throttleSeconds float64
	last            map[string]time.Time
}

// NewThrottle returns a Throttle that allows at most one notification per
// key every throttleSeconds seconds.
func NewThrottle(throttleSeconds float64) *Throttle {
	return &Throttle{throttleSeconds: throttleSeconds, last: make(map[string]time.Time)}
}

// Allow reports whether a notification for key may be sent now, and if so
// records the current time as its last-sent time.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if last, ok := t.last[key]; ok && now.Sub(last).Seconds() < t.throttleSeconds {
		return false
	}
	t.last[key] = now
	return true
}
