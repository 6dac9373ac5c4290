/*
Package limiter provides keyed event throttling based on the token bucket algorithm.

Each key (for the chat client, a conversation id) owns a rate.Limiter; an event for a key
is allowed at most once per interval. Idle keys can be pruned so the map stays bounded.
*/
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle allows one event per interval for each key.
type Throttle struct {
	// mu protects concurrent access to the limits map.
	mu sync.RWMutex

	// limits stores the map from key to its *rate.Limiter instance.
	limits map[string]*rate.Limiter

	// r is the refill rate of every limiter.
	r rate.Limit

	// b is the burst size of every limiter.
	b int
}

// NewThrottle creates a Throttle that lets one event per interval through for each key.
// A non-positive interval disables throttling.
func NewThrottle(interval time.Duration) *Throttle {
	r := rate.Inf
	if interval > 0 {
		r = rate.Every(interval)
	}

	return &Throttle{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      1,
	}
}

// GetLimiter retrieves the limiter for key, creating it on first use.
// It uses double-checked locking so concurrent callers share one limiter.
func (t *Throttle) GetLimiter(key string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limits[key]
	t.mu.RUnlock()

	if !exists {
		t.mu.Lock()
		limiter, exists = t.limits[key]
		if !exists {
			limiter = rate.NewLimiter(t.r, t.b)
			t.limits[key] = limiter
		}
		t.mu.Unlock()
	}

	return limiter
}

// AllowAt reports whether an event for key may happen at now.
func (t *Throttle) AllowAt(key string, now time.Time) bool {
	return t.GetLimiter(key).AllowN(now, 1)
}

// Forget drops the limiter for key.
func (t *Throttle) Forget(key string) {
	t.mu.Lock()
	delete(t.limits, key)
	t.mu.Unlock()
}

// Prune removes every limiter whose bucket is full at now, i.e. keys that
// have been quiet for at least one interval. It returns the number removed.
func (t *Throttle) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for key, limiter := range t.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(t.limits, key)
			count++
		}
	}
	return count
}

// Len returns the number of tracked keys.
func (t *Throttle) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.limits)
}
