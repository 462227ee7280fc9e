// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN; required by every binary that touches the store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "sessionguard").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "sessionguard-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// MaxConcurrentSessions is the per-account active session cap enforced on login; must be >= 1.
	MaxConcurrentSessions int `mapstructure:"MAX_CONCURRENT_SESSIONS"`
	// SessionCorrelationWindow is the half-width of the issuance window used to pair
	// access tokens with a revoked refresh token (e.g. "60s").
	SessionCorrelationWindow string `mapstructure:"SESSION_CORRELATION_WINDOW"`

	// MaxFailedAttempts is the consecutive-failure count that locks an account; default 5.
	MaxFailedAttempts int `mapstructure:"MAX_FAILED_ATTEMPTS"`
	// FailedAttemptResetWindow is how long after the last failure the counter restarts at 1 (e.g. "60m").
	FailedAttemptResetWindow string `mapstructure:"FAILED_ATTEMPT_RESET_WINDOW"`
	// LockoutDuration is how long a brute-force lock lasts before lazy expiry (e.g. "15m").
	LockoutDuration string `mapstructure:"LOCKOUT_DURATION"`

	// AlertWindow is the sliding window for alert rules (e.g. "15m").
	AlertWindow string `mapstructure:"ALERT_WINDOW"`
	// BruteForceThreshold is the AUTH_FAILURE count per source IP that raises a brute-force alert.
	BruteForceThreshold int `mapstructure:"BRUTE_FORCE_THRESHOLD"`
	// MultiIPThreshold is the distinct-success-IP count per account that raises a
	// suspicious-login-pattern alert.
	MultiIPThreshold int `mapstructure:"MULTI_IP_THRESHOLD"`
	// RateLimitThreshold is the RATE_LIMIT_EXCEEDED count per source IP that raises an alert.
	RateLimitThreshold int `mapstructure:"RATE_LIMIT_THRESHOLD"`

	// SweepInterval is how often the sweeper revokes expired sessions (e.g. "5m").
	SweepInterval string `mapstructure:"SWEEP_INTERVAL"`
	// TokenRetention is how long after expiry token rows are kept before hard deletion (e.g. "720h").
	TokenRetention string `mapstructure:"TOKEN_RETENTION"`

	// AlertKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables publishing.
	AlertKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AlertKafkaTopic is the Kafka topic for alert notifications (default sessionguard-alerts).
	AlertKafkaTopic string `mapstructure:"ALERT_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the alert worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// LokiURL is the Loki base URL the worker pushes alert lines to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLPEndpoint is the OTLP gRPC endpoint for telemetry export; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ISSUER", "sessionguard")
	v.SetDefault("JWT_AUDIENCE", "sessionguard-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_CONCURRENT_SESSIONS", 5)
	v.SetDefault("SESSION_CORRELATION_WINDOW", "60s")
	v.SetDefault("MAX_FAILED_ATTEMPTS", 5)
	v.SetDefault("FAILED_ATTEMPT_RESET_WINDOW", "60m")
	v.SetDefault("LOCKOUT_DURATION", "15m")
	v.SetDefault("ALERT_WINDOW", "15m")
	v.SetDefault("BRUTE_FORCE_THRESHOLD", 5)
	v.SetDefault("MULTI_IP_THRESHOLD", 3)
	v.SetDefault("RATE_LIMIT_THRESHOLD", 10)
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("TOKEN_RETENTION", "720h") // 30d
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ALERT_KAFKA_TOPIC", "sessionguard-alerts")
	v.SetDefault("KAFKA_GROUP_ID", "sessionguard-alert-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.MaxConcurrentSessions < 1 {
		return nil, errors.New("config: MAX_CONCURRENT_SESSIONS must be >= 1")
	}
	if cfg.MaxFailedAttempts < 1 {
		return nil, errors.New("config: MAX_FAILED_ATTEMPTS must be >= 1")
	}
	if cfg.BruteForceThreshold < 1 || cfg.MultiIPThreshold < 1 || cfg.RateLimitThreshold < 1 {
		return nil, errors.New("config: alert thresholds must be >= 1")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// durationOr parses s as a time.Duration, falling back to def when unset or non-positive.
func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration { return durationOr(c.JWTAccessTTL, 15*time.Minute) }

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration { return durationOr(c.JWTRefreshTTL, 168*time.Hour) }

// CorrelationWindow parses SessionCorrelationWindow. Returns 60s if unset or invalid.
func (c *Config) CorrelationWindow() time.Duration {
	return durationOr(c.SessionCorrelationWindow, 60*time.Second)
}

// ResetWindow parses FailedAttemptResetWindow. Returns 60m if unset or invalid.
func (c *Config) ResetWindow() time.Duration {
	return durationOr(c.FailedAttemptResetWindow, 60*time.Minute)
}

// LockoutFor parses LockoutDuration. Returns 15m if unset or invalid.
func (c *Config) LockoutFor() time.Duration { return durationOr(c.LockoutDuration, 15*time.Minute) }

// AlertSlidingWindow parses AlertWindow. Returns 15m if unset or invalid.
func (c *Config) AlertSlidingWindow() time.Duration {
	return durationOr(c.AlertWindow, 15*time.Minute)
}

// SweepEvery parses SweepInterval. Returns 5m if unset or invalid.
func (c *Config) SweepEvery() time.Duration { return durationOr(c.SweepInterval, 5*time.Minute) }

// Retention parses TokenRetention. Returns 720h if unset or invalid.
func (c *Config) Retention() time.Duration { return durationOr(c.TokenRetention, 720*time.Hour) }

// AlertKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if alert publishing is enabled (non-empty list) and to create the producer.
func (c *Config) AlertKafkaBrokersList() []string {
	if c == nil || c.AlertKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AlertKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
