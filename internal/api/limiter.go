package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"slotbook/internal/config"
)

const (
	defaultBurst   = 5
	limiterIdleTTL = 10 * time.Minute
	// pruneEvery bounds how often allow scans for idle buckets.
	pruneEvery = 1024
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client key. Buckets idle for
// limiterIdleTTL are dropped.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	calls   int
	now     func() time.Time
}

func newRateLimiter(cfg *config.APIConfig) *rateLimiter {
	burst := cfg.RateLimit.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &rateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(cfg.RateLimit.RPS),
		burst:   burst,
		now:     time.Now,
	}
}

// allow takes one token from key's bucket. A non-positive rate disables limiting.
func (l *rateLimiter) allow(key string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%pruneEvery == 0 {
		l.prune(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (l *rateLimiter) prune(now time.Time) int {
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
