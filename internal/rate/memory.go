package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter: fixed window en memoria, para deployments de una sola
// instancia (bus memory). Mismo algoritmo que RedisLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	max     int64
	window  time.Duration
	windows map[string]*memWindow
}

type memWindow struct {
	start time.Time
	hits  int64
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     int64(max),
		window:  window,
		windows: make(map[string]*memWindow),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || w.start.Before(winStart) {
		w = &memWindow{start: winStart}
		l.windows[key] = w
		if len(l.windows)%1024 == 0 {
			l.evictStaleLocked(winStart)
		}
	}
	w.hits++

	allowed := w.hits <= l.max
	remaining := l.max - w.hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: w.hits,
		WindowTTL:   l.window - now.Sub(winStart),
	}
	if !allowed {
		res.RetryAfter = l.window - now.Sub(winStart)
	}
	return res, nil
}

func (l *MemoryLimiter) evictStaleLocked(winStart time.Time) {
	for k, w := range l.windows {
		if w.start.Before(winStart) {
			delete(l.windows, k)
		}
	}
}
