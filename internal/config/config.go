package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvMapboxToken  = "MAPBOX_TOKEN"

	EnvS3Bucket          = "S3_BUCKET_NAME"
	EnvS3Region          = "S3_REGION"
	EnvS3Endpoint        = "S3_ENDPOINT_URL"
	EnvS3AccessKeyID     = "S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey = "S3_SECRET_ACCESS_KEY"

	EnvRateLimit         = "RATE_LIMIT"
	EnvRateLimitRedisURL = "RATE_LIMIT_REDIS_ADDR"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// CreditsConfig controls the per-user credit balance.
type CreditsConfig struct {
	Default int    `yaml:"default"` // Balance granted to a user without a billing row.
	TopUp   int    `yaml:"top-up"`  // Credits added by one top-up.
	Plan    string `yaml:"plan"`    // Plan name written on new billing rows.
}

// RateLimitConfig controls per-user throttling of analysis requests.
type RateLimitConfig struct {
	Limit         int    `yaml:"limit"`          // Requests allowed per window; 0 disables limiting.
	WindowSeconds int    `yaml:"window-seconds"` // Fixed window length.
	RedisEnabled  bool   `yaml:"redis-enabled"`
	RedisAddr     string `yaml:"redis-addr"`
	RedisPassword string `yaml:"redis-password"`
	RedisDB       int    `yaml:"redis-db"`
	RedisPrefix   string `yaml:"redis-prefix"`
}

// S3Config holds object storage settings for uploaded documents.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	EndpointURL     string `yaml:"endpoint-url"`
	AccessKeyID     string `yaml:"access-key-id"`
	SecretAccessKey string `yaml:"secret-access-key"`
}

// Enabled reports whether uploads can be stored.
func (c S3Config) Enabled() bool {
	return strings.TrimSpace(c.Bucket) != ""
}

// ServiceConfig groups the settings consumed by the HTTP service.
type ServiceConfig struct {
	Port          int             `yaml:"port"`
	AllowOrigins  []string        `yaml:"allow-origins"`
	MetricsPrefix string          `yaml:"metrics-prefix"`
	MapboxToken   string          `yaml:"mapbox-token"`
	Credits       CreditsConfig   `yaml:"credits"`
	RateLimit     RateLimitConfig `yaml:"rate-limit"`
	S3            S3Config        `yaml:"s3"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 7 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	if strings.TrimSpace(result.Secret) == "" {
		return result, errors.New("missing jwt secret (set `jwt.secret` or JWT_SECRET)")
	}
	return result, nil
}

// Defaults for the service section.
const (
	DefaultPort           = 8318
	DefaultCredits        = 20
	DefaultTopUpCredits   = 20
	DefaultPlan           = "free"
	DefaultMetricsPrefix  = "estateiq"
	DefaultRateLimitRedis = "estateiq:rl"
	DefaultRateLimitWin   = 1
	DefaultS3Region       = "us-east-1"
)

// LoadServiceConfig loads the service section of the YAML config file and applies env overrides.
// A missing file yields defaults.
func LoadServiceConfig(configPath string) (ServiceConfig, error) {
	result := ServiceConfig{
		Port:          DefaultPort,
		MetricsPrefix: DefaultMetricsPrefix,
		Credits: CreditsConfig{
			Default: DefaultCredits,
			TopUp:   DefaultTopUpCredits,
			Plan:    DefaultPlan,
		},
		RateLimit: RateLimitConfig{WindowSeconds: DefaultRateLimitWin, RedisPrefix: DefaultRateLimitRedis},
		S3:        S3Config{Region: DefaultS3Region},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		// fileConfig maps the top-level service key.
		type fileConfig struct {
			Service ServiceConfig `yaml:"service"`
		}
		cfg := fileConfig{Service: result}
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return result, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		result = cfg.Service
	} else if !errors.Is(errRead, os.ErrNotExist) {
		return result, fmt.Errorf("read config file: %w", errRead)
	}

	applyServiceEnv(&result)
	normalizeServiceConfig(&result)
	return result, nil
}

func applyServiceEnv(cfg *ServiceConfig) {
	if token := strings.TrimSpace(os.Getenv(EnvMapboxToken)); token != "" {
		cfg.MapboxToken = token
	}
	if bucket := strings.TrimSpace(os.Getenv(EnvS3Bucket)); bucket != "" {
		cfg.S3.Bucket = bucket
	}
	if region := strings.TrimSpace(os.Getenv(EnvS3Region)); region != "" {
		cfg.S3.Region = region
	}
	if endpoint := strings.TrimSpace(os.Getenv(EnvS3Endpoint)); endpoint != "" {
		cfg.S3.EndpointURL = endpoint
	}
	if keyID := strings.TrimSpace(os.Getenv(EnvS3AccessKeyID)); keyID != "" {
		cfg.S3.AccessKeyID = keyID
	}
	if secret := strings.TrimSpace(os.Getenv(EnvS3SecretAccessKey)); secret != "" {
		cfg.S3.SecretAccessKey = secret
	}
	if limitRaw := strings.TrimSpace(os.Getenv(EnvRateLimit)); limitRaw != "" {
		if limit, errParse := strconv.Atoi(limitRaw); errParse == nil && limit >= 0 {
			cfg.RateLimit.Limit = limit
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRateLimitRedisURL)); addr != "" {
		cfg.RateLimit.RedisAddr = addr
		cfg.RateLimit.RedisEnabled = true
	}
}

func normalizeServiceConfig(cfg *ServiceConfig) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}
	if cfg.Credits.Default < 0 {
		cfg.Credits.Default = 0
	}
	if cfg.Credits.TopUp <= 0 {
		cfg.Credits.TopUp = DefaultTopUpCredits
	}
	cfg.Credits.Plan = strings.TrimSpace(cfg.Credits.Plan)
	if cfg.Credits.Plan == "" {
		cfg.Credits.Plan = DefaultPlan
	}
	if strings.TrimSpace(cfg.MetricsPrefix) == "" {
		cfg.MetricsPrefix = DefaultMetricsPrefix
	}
	if cfg.RateLimit.Limit < 0 {
		cfg.RateLimit.Limit = 0
	}
	if cfg.RateLimit.WindowSeconds <= 0 {
		cfg.RateLimit.WindowSeconds = DefaultRateLimitWin
	}
	if cfg.RateLimit.RedisDB < 0 {
		cfg.RateLimit.RedisDB = 0
	}
	cfg.RateLimit.RedisPrefix = strings.TrimSpace(cfg.RateLimit.RedisPrefix)
	if cfg.RateLimit.RedisPrefix == "" {
		cfg.RateLimit.RedisPrefix = DefaultRateLimitRedis
	}
	if strings.TrimSpace(cfg.S3.Region) == "" {
		cfg.S3.Region = DefaultS3Region
	}
}
