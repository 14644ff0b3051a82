// Package ratelimit throttles mutating requests per client IP with a
// fixed one-minute window.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	openedAt time.Time
	count    int
}

// Limiter counts requests per client inside a rolling one-minute window.
// Stale clients are swept by a background goroutine.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	perMinute     int
	sweepInterval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Config struct {
	RequestsPerMinute int
	SweepInterval     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		SweepInterval:     5 * time.Minute,
	}
}

func NewLimiter(cfg Config) *Limiter {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	l := &Limiter{
		windows:       make(map[string]*window),
		perMinute:     cfg.RequestsPerMinute,
		sweepInterval: cfg.SweepInterval,
		stopCh:        make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow reports whether a request from clientIP fits in its current window.
func (l *Limiter) Allow(clientIP string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w, ok := l.windows[clientIP]
	if !ok || now.Sub(w.openedAt) > time.Minute {
		l.windows[clientIP] = &window{openedAt: now, count: 1}
		return true
	}
	w.count++
	return w.count <= l.perMinute
}

// ActiveClients returns the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Stop halts the sweep goroutine.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopCh:
			return
		}
	}
}

// sweep drops clients whose window closed more than ten minutes ago.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, w := range l.windows {
		if w.openedAt.Before(cutoff) {
			delete(l.windows, ip)
		}
	}
}
