package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps a token bucket per key: the principal for API calls, the
// client IP for strict auth limits.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiter allows rps sustained requests per key with the given burst
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(rps),
		burst:   burst,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go l.cleanupOldBuckets()
	return l
}

// Allow consumes a token for key. An empty key is never limited.
func (l *Limiter) Allow(key string) bool {
	if key == "" {
		return true
	}
	return l.get(key, l.limit, l.burst).Allow()
}

// AllowStrict applies a separate perMinute budget for sensitive endpoints
func (l *Limiter) AllowStrict(identifier string, perMinute int) bool {
	if perMinute <= 0 {
		return true
	}
	return l.get("strict:"+identifier, rate.Every(time.Minute/time.Duration(perMinute)), perMinute).Allow()
}

func (l *Limiter) get(key string, limit rate.Limit, burst int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(limit, burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.lim
}

func (l *Limiter) cleanupOldBuckets() {
	for {
		select {
		case <-l.done:
			return
		case now := <-l.cleanup.C:
			l.mu.Lock()
			staleThreshold := now.Add(-15 * time.Minute)
			for key, b := range l.buckets {
				if b.lastSeen.Before(staleThreshold) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Stop ends the cleanup goroutine
func (l *Limiter) Stop() {
	l.cleanup.Stop()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}
