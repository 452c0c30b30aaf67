package config

import (
	"os"
	"sync"
	"time"

	"github.com/fittrack/backend/internal/secrets"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds all configuration for the application
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Webhook     WebhookConfig
	Affiliate   AffiliateConfig
	RateLimit   RateLimitConfig
	FrontendURL string
	Environment string

	dopplerClient   *secrets.DopplerClient
	dopplerInitOnce sync.Once
}

// DatabaseConfig holds database configuration. An empty URL selects the
// local sqlite file used in development.
type DatabaseConfig struct {
	URL        string
	SQLitePath string
	MaxConns   int
	MaxIdle    int
	LogQueries bool
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig holds Redis configuration. An empty URL keeps reconciler
// locks in-process.
type RedisConfig struct {
	URL string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// WebhookConfig holds the shared key the payment webhook relay presents
type WebhookConfig struct {
	APIKey string
}

// AffiliateConfig holds tunables for the referral and commission engine
type AffiliateConfig struct {
	CodeMaxAttempts             int
	CodeSuffixLength            int
	DefaultCommissionPercentage string
	LockTTL                     time.Duration
	LockRetryInterval           time.Duration
}

// RateLimitConfig holds per-IP limits for public endpoints and the tighter
// per-account limit on signup and login
type RateLimitConfig struct {
	RequestsPerSecond     float64
	Burst                 int
	AuthRequestsPerMinute float64
	AuthBurst             int
}

// LoadConfig creates a new Config instance with values from environment variables.
// It will try to load from .env file first, then secrets from Doppler if available.
func LoadConfig() *Config {
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			URL:        getEnv("DATABASE_URL", ""),
			SQLitePath: getEnv("SQLITE_PATH", "fittrack.db"),
			MaxConns:   getEnvInt("DATABASE_MAX_CONNS", 20),
			MaxIdle:    getEnvInt("DATABASE_MAX_IDLE", 5),
			LogQueries: getEnvBool("DATABASE_LOG_QUERIES", false),
		},
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		JWT: JWTConfig{
			Expiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Affiliate: AffiliateConfig{
			CodeMaxAttempts:             getEnvInt("AFFILIATE_CODE_MAX_ATTEMPTS", 5),
			CodeSuffixLength:            getEnvInt("AFFILIATE_CODE_SUFFIX_LENGTH", 2),
			DefaultCommissionPercentage: getEnv("AFFILIATE_DEFAULT_COMMISSION_PERCENTAGE", "20"),
			LockTTL:                     getEnvDuration("AFFILIATE_LOCK_TTL", 30*time.Second),
			LockRetryInterval:           getEnvDuration("AFFILIATE_LOCK_RETRY_INTERVAL", 50*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:     getEnvFloat("RATE_LIMIT_RPS", 5),
			Burst:                 getEnvInt("RATE_LIMIT_BURST", 20),
			AuthRequestsPerMinute: getEnvFloat("RATE_LIMIT_AUTH_RPM", 10),
			AuthBurst:             getEnvInt("RATE_LIMIT_AUTH_BURST", 5),
		},
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		Environment: getEnv("ENVIRONMENT", "development"),

		dopplerClient: secrets.NewDopplerClient(
			getEnv("DOPPLER_PROJECT", "fittrack"),
			getEnv("DOPPLER_CONFIG", "dev"),
		),
	}

	config.initSecrets()

	return config
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// initSecrets initializes sensitive configuration values from Doppler,
// falling back to the environment when the CLI is unavailable
func (c *Config) initSecrets() {
	c.dopplerInitOnce.Do(func() {
		if err := c.dopplerClient.Initialize(); err != nil {
			c.JWT.Secret = getEnv("JWT_SECRET", "fittrack-development-secret")
			c.Webhook.APIKey = getEnv("WEBHOOK_API_KEY", "")
			return
		}

		c.JWT.Secret = c.dopplerClient.GetSecretWithFallback("JWT_SECRET", getEnv("JWT_SECRET", "fittrack-development-secret"))
		c.Webhook.APIKey = c.dopplerClient.GetSecretWithFallback("WEBHOOK_API_KEY", getEnv("WEBHOOK_API_KEY", ""))
	})
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := cast.ToIntE(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := cast.ToFloat64E(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := cast.ToBoolE(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvDuration accepts Go duration strings ("30s") or bare integers as seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	if seconds, err := cast.ToInt64E(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := cast.ToDurationE(raw)
	if err != nil {
		return defaultValue
	}
	return value
}
