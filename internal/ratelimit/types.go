package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Limiter provides fixed-window rate limit checks.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}

// Scope names the operation a limit applies to.
type Scope string

const (
	ScopeNone    Scope = ""
	ScopeAnalyze Scope = "analyze"
	ScopeUpload  Scope = "upload"
)

// Decision describes the resolved rate limit for one request.
type Decision struct {
	Limit  int
	Window time.Duration
	Scope  Scope
}
