package gateway

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimiter refuses a websocket upgrade from an address that connected less than
// interval ago. A zero interval allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	clock    clock.Clock
	interval time.Duration
	lastSeen map[string]time.Time
}

func NewRateLimiter(interval time.Duration, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{
		clock:    clk,
		interval: interval,
		lastSeen: make(map[string]time.Time),
	}
}

// Deny records the attempt and reports whether it came too soon after the last one.
func (l *RateLimiter) Deny(ip string) bool {
	if l == nil || l.interval <= 0 {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	last, ok := l.lastSeen[ip]
	l.lastSeen[ip] = now
	if len(l.lastSeen) > 1024 {
		l.pruneLocked(now)
	}
	return ok && now.Sub(last) < l.interval
}

func (l *RateLimiter) pruneLocked(now time.Time) {
	for ip, seen := range l.lastSeen {
		if now.Sub(seen) >= l.interval {
			delete(l.lastSeen, ip)
		}
	}
}
