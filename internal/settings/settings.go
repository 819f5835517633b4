// Package settings holds the live service settings snapshot shared by request handlers.
package settings

import (
	"sync/atomic"

	"github.com/estateiq/estateiq/internal/config"
)

var current atomic.Pointer[config.ServiceConfig]

// Apply replaces the live settings snapshot.
func Apply(cfg config.ServiceConfig) {
	snapshot := cfg
	current.Store(&snapshot)
}

// Current returns the live settings snapshot, falling back to defaults before Apply runs.
func Current() config.ServiceConfig {
	if cfg := current.Load(); cfg != nil {
		return *cfg
	}
	return Defaults()
}

// Defaults returns the built-in service settings.
func Defaults() config.ServiceConfig {
	return config.ServiceConfig{
		Port:          config.DefaultPort,
		MetricsPrefix: config.DefaultMetricsPrefix,
		Credits: config.CreditsConfig{
			Default: config.DefaultCredits,
			TopUp:   config.DefaultTopUpCredits,
			Plan:    config.DefaultPlan,
		},
		RateLimit: config.RateLimitConfig{
			WindowSeconds: config.DefaultRateLimitWin,
			RedisPrefix:   config.DefaultRateLimitRedis,
		},
		S3: config.S3Config{Region: config.DefaultS3Region},
	}
}

// Credits returns the credit settings from the live snapshot.
func Credits() config.CreditsConfig {
	return Current().Credits
}

// RateLimit returns the rate limit settings from the live snapshot.
func RateLimit() config.RateLimitConfig {
	return Current().RateLimit
}
