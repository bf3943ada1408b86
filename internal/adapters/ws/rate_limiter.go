package ws

import (
	"sync"
	"time"

	"github.com/hallchat/relay/internal/core"
)

// eventLimiter caps inbound events per connection over a sliding
// window. A non-positive limit disables it.
type eventLimiter struct {
	mu      sync.Mutex
	history map[core.SessionID][]time.Time
	limit   int
	window  time.Duration
}

func newEventLimiter(limit int, window time.Duration) *eventLimiter {
	return &eventLimiter{
		history: make(map[core.SessionID][]time.Time),
		limit:   limit,
		window:  window,
	}
}

func (rl *eventLimiter) Allow(sid core.SessionID) bool {
	if rl.limit <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[sid]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[sid] = fresh
		return false
	}

	rl.history[sid] = append(fresh, now)
	return true
}

func (rl *eventLimiter) Forget(sid core.SessionID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, sid)
}
