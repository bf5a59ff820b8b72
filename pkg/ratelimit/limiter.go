// Package ratelimit provides the per-(user,channel) leaky-bucket limiter
// and per-(alert,channel) de-duplication guard the Notification Pipeline
// enforces before invoking a channel adapter.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config sizes the default leaky bucket. Per spec default: 100/hour.
type Config struct {
	RatePerHour float64       `mapstructure:"rate_per_hour"`
	Burst       int           `mapstructure:"burst"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	Cleanup     time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultConfig returns the platform default: 100/hour per (user, channel),
// with a 1 hour de-duplication window.
func DefaultConfig() Config {
	return Config{
		RatePerHour: 100,
		Burst:       10,
		DedupWindow: time.Hour,
		Cleanup:     10 * time.Minute,
	}
}

// Limiter enforces the per-(user,channel) throttle and per-(alert,channel)
// de-duplication the pipeline applies before every delivery attempt.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	buckets  map[string]*bucket
	sentKeys map[string]time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New builds a Limiter and starts its background cleanup loop.
func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:      cfg,
		buckets:  make(map[string]*bucket),
		sentKeys: make(map[string]time.Time),
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a delivery to (userID, channel) may proceed right
// now under the leaky-bucket rate, consuming one token if so.
func (l *Limiter) Allow(userID, channel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := userID + ":" + channel
	b, ok := l.buckets[key]
	if !ok {
		perSecond := rate.Limit(l.cfg.RatePerHour / 3600)
		b = &bucket{limiter: rate.NewLimiter(perSecond, l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastUsed = time.Now()
	return b.limiter.Allow()
}

// AlreadySent reports whether (alertID, channel) was delivered within the
// de-duplication window, and if not, marks it sent now.
func (l *Limiter) AlreadySent(alertID, channel string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := alertID + ":" + channel
	if sentAt, ok := l.sentKeys[key]; ok && time.Since(sentAt) < l.cfg.DedupWindow {
		return true
	}
	l.sentKeys[key] = time.Now()
	return false
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.Cleanup)
	defer ticker.Stop()
	for range ticker.C {
		l.cleanup()
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUsed) > time.Hour {
			delete(l.buckets, key)
		}
	}
	for key, sentAt := range l.sentKeys {
		if now.Sub(sentAt) > l.cfg.DedupWindow {
			delete(l.sentKeys, key)
		}
	}
}
