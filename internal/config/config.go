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
	// HTTPAddr is the address the provisioning HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC health server listens on (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN used by cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// ServiceDatabaseURL is the Postgres DSN of the privileged service role (bypasses row-level security).
	// Only composition roots (cmd/server, cmd/worker, cmd/seed) open it. Falls back to DatabaseURL when empty.
	ServiceDatabaseURL string `mapstructure:"SERVICE_DATABASE_URL"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to verify caller bearer tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTPrivateKey is the PEM-encoded private key or path to file; only cmd/seed uses it to mint dev tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTIssuer is the expected iss claim.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the expected aud claim.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of tokens minted by cmd/seed (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// InvitationTTL is how long a provisioning invitation stays pending (e.g. "24h").
	InvitationTTL string `mapstructure:"INVITATION_TTL"`
	// StepTimeout bounds each remote step of the provisioning saga (e.g. "10s").
	StepTimeout string `mapstructure:"STEP_TIMEOUT"`
	// CompensationTimeout bounds the whole rollback of a failed saga (e.g. "30s").
	CompensationTimeout string `mapstructure:"COMPENSATION_TIMEOUT"`
	// CompensationRetries is the maximum number of attempts for each idempotent compensating delete.
	CompensationRetries int `mapstructure:"COMPENSATION_RETRIES"`

	// RateLimitRPS is the sustained per-client request rate for the provisioning API.
	RateLimitRPS int `mapstructure:"RATE_LIMIT_RPS"`
	// RateLimitBurst is the per-client burst size for the provisioning API.
	RateLimitBurst int `mapstructure:"RATE_LIMIT_BURST"`
	// MaxBodyBytes caps the request body size of the provisioning API.
	MaxBodyBytes int64 `mapstructure:"MAX_BODY_BYTES"`

	// ProvisioningPolicyFile is an optional path to a Rego module overriding the default provisioning policy.
	ProvisioningPolicyFile string `mapstructure:"PROVISIONING_POLICY_FILE"`
	// ExpirySweepSchedule is the cron spec for the invitation expiry worker (e.g. "@every 5m").
	ExpirySweepSchedule string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`
	// HealthInterval is how often the readiness checker refreshes gRPC health status (e.g. "15s").
	HealthInterval string `mapstructure:"HEALTH_INTERVAL"`

	// KafkaBrokers is a comma-separated list of brokers for provisioning events; empty disables publishing.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaEventsTopic is the topic provisioning events are written to.
	KafkaEventsTopic string `mapstructure:"KAFKA_EVENTS_TOPIC"`

	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces a plaintext connection to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OpenTelemetry service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

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

	// Every key needs a default so AutomaticEnv picks it up during Unmarshal.
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SERVICE_DATABASE_URL", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_ISSUER", "centora-auth")
	v.SetDefault("JWT_AUDIENCE", "centora-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("INVITATION_TTL", "24h")
	v.SetDefault("STEP_TIMEOUT", "10s")
	v.SetDefault("COMPENSATION_TIMEOUT", "30s")
	v.SetDefault("COMPENSATION_RETRIES", 3)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("MAX_BODY_BYTES", 1<<20)
	v.SetDefault("PROVISIONING_POLICY_FILE", "")
	v.SetDefault("EXPIRY_SWEEP_SCHEDULE", "@every 5m")
	v.SetDefault("HEALTH_INTERVAL", "15s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "centora.provisioning.events")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "centora-provisioning")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.CompensationRetries < 1 {
		return nil, errors.New("config: COMPENSATION_RETRIES must be at least 1")
	}
	if cfg.RateLimitRPS < 1 || cfg.RateLimitBurst < 1 {
		return nil, errors.New("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		return nil, errors.New("config: LOG_FORMAT must be json or text")
	}

	return &cfg, nil
}

// ServiceDSN returns the DSN for the privileged service handle, falling back to DatabaseURL.
func (c *Config) ServiceDSN() string {
	if c.ServiceDatabaseURL != "" {
		return c.ServiceDatabaseURL
	}
	return c.DatabaseURL
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// InvitationLifetime parses InvitationTTL. Returns 24h if unset or invalid.
func (c *Config) InvitationLifetime() time.Duration {
	return parseDuration(c.InvitationTTL, 24*time.Hour)
}

// StepDeadline parses StepTimeout. Returns 10s if unset or invalid.
func (c *Config) StepDeadline() time.Duration {
	return parseDuration(c.StepTimeout, 10*time.Second)
}

// CompensationDeadline parses CompensationTimeout. Returns 30s if unset or invalid.
func (c *Config) CompensationDeadline() time.Duration {
	return parseDuration(c.CompensationTimeout, 30*time.Second)
}

// HealthCheckInterval parses HealthInterval. Returns 15s if unset or invalid.
func (c *Config) HealthCheckInterval() time.Duration {
	return parseDuration(c.HealthInterval, 15*time.Second)
}

// Brokers splits KafkaBrokers, dropping blank entries.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
