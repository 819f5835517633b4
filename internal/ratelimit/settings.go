package ratelimit

import (
	"strings"
	"time"

	"github.com/estateiq/estateiq/internal/config"
	internalsettings "github.com/estateiq/estateiq/internal/settings"
)

// LoadSettingsConfig returns the normalized rate limit settings from the live snapshot.
func LoadSettingsConfig() config.RateLimitConfig {
	cfg := internalsettings.RateLimit()
	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = config.DefaultRateLimitRedis
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = config.DefaultRateLimitWin
	}
	return cfg
}

// ResolveLimit returns the limit for a scope. Uploads share the analyze budget.
func ResolveLimit(cfg config.RateLimitConfig, scope Scope) Decision {
	if cfg.Limit <= 0 || scope == ScopeNone {
		return Decision{}
	}
	window := time.Duration(cfg.WindowSeconds) * time.Second
	if window <= 0 {
		window = time.Second
	}
	return Decision{Limit: cfg.Limit, Window: window, Scope: scope}
}
