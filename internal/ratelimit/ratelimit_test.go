package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/estateiq/estateiq/internal/config"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(context.Background(), "u:a:analyze", 2, time.Second, now)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
	}
	res, _ := limiter.Allow(context.Background(), "u:a:analyze", 2, time.Second, now)
	if res.Allowed {
		t.Fatalf("expected third request in the window to be rejected")
	}
	if !res.Reset.Equal(time.Unix(1_700_000_001, 0).UTC()) {
		t.Fatalf("unexpected reset %s", res.Reset)
	}

	res, _ = limiter.Allow(context.Background(), "u:a:analyze", 2, time.Second, now.Add(time.Second))
	if !res.Allowed || res.Remaining != 1 {
		t.Fatalf("expected next window to reset counter, got %+v", res)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)

	if res, _ := limiter.Allow(context.Background(), "u:a:analyze", 1, time.Second, now); !res.Allowed {
		t.Fatalf("expected first user allowed")
	}
	if res, _ := limiter.Allow(context.Background(), "u:b:analyze", 1, time.Second, now); !res.Allowed {
		t.Fatalf("expected second user allowed")
	}
}

func TestMemoryLimiterSweepsClosedWindows(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_000, 0)
	_, _ = limiter.Allow(context.Background(), "u:a:analyze", 1, time.Second, now)

	later := now.Add(2 * memorySweepEvery)
	_, _ = limiter.Allow(context.Background(), "u:b:analyze", 1, time.Second, later)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.counters["u:a:analyze"]; ok {
		t.Fatalf("expected stale entry to be swept")
	}
}

func TestKeyForDecision(t *testing.T) {
	decision := Decision{Limit: 1, Window: time.Second, Scope: ScopeAnalyze}
	if got := KeyForDecision("user-1", decision); got != "u:user-1:analyze" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := KeyForDecision("", decision); got != "" {
		t.Fatalf("expected empty key without user, got %q", got)
	}
	if got := KeyForDecision("user-1", Decision{Scope: ScopeAnalyze}); got != "" {
		t.Fatalf("expected empty key without limit, got %q", got)
	}
}

func TestManagerCheckDisabled(t *testing.T) {
	manager := NewManager(func() config.RateLimitConfig { return config.RateLimitConfig{} }, nil, nil)
	for i := 0; i < 5; i++ {
		res, _, err := manager.Check(context.Background(), "user-1", ScopeAnalyze)
		if err != nil || !res.Allowed {
			t.Fatalf("expected unlimited access, got %+v err=%v", res, err)
		}
	}
}

func TestManagerFallsBackToMemoryWhenRedisUnavailable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cfg := config.RateLimitConfig{
		Limit:         1,
		WindowSeconds: 10,
		RedisEnabled:  true,
		RedisAddr:     "127.0.0.1:1",
		RedisPrefix:   "test:rl",
	}
	manager := NewManager(func() config.RateLimitConfig { return cfg }, func() time.Time { return now }, nil)
	t.Cleanup(func() { _ = manager.Close() })

	res, decision, err := manager.Check(context.Background(), "user-1", ScopeAnalyze)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !res.Allowed {
		t.Fatalf("expected first request allowed")
	}
	if decision.Window != 10*time.Second {
		t.Fatalf("expected 10s window, got %s", decision.Window)
	}
	res, _, _ = manager.Check(context.Background(), "user-1", ScopeAnalyze)
	if res.Allowed {
		t.Fatalf("expected memory fallback to enforce the limit")
	}
	if !manager.isBreakerActive(now) {
		t.Fatalf("expected breaker to be tripped after redis failure")
	}
}
