package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memorySweepEvery bounds how often stale windows are dropped from the map.
const memorySweepEvery = time.Minute

type memoryEntry struct {
	window int64
	count  int
	span   time.Duration
}

// MemoryLimiter implements a fixed-window in-memory rate limiter.
type MemoryLimiter struct {
	mu        sync.Mutex
	counters  map[string]*memoryEntry
	lastSweep time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryEntry),
	}
}

// Allow checks whether the request fits in the current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if window <= 0 {
		window = time.Second
	}
	slot := windowSlot(now, window)
	reset := windowReset(slot, window)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	entry := l.counters[key]
	if entry == nil {
		entry = &memoryEntry{window: slot, span: window}
		l.counters[key] = entry
	}
	if entry.window != slot || entry.span != window {
		entry.window = slot
		entry.span = window
		entry.count = 0
	}
	if entry.count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: reset}, nil
	}
	entry.count++
	return Result{Allowed: true, Remaining: limit - entry.count, Reset: reset}, nil
}

// sweep drops entries whose window has already closed. Callers hold l.mu.
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < memorySweepEvery {
		return
	}
	l.lastSweep = now
	for key, entry := range l.counters {
		if !windowReset(entry.window, entry.span).After(now) {
			delete(l.counters, key)
		}
	}
}

func windowSlot(now time.Time, window time.Duration) int64 {
	return now.UnixNano() / int64(window)
}

func windowReset(slot int64, window time.Duration) time.Time {
	return time.Unix(0, (slot+1)*int64(window)).UTC()
}
