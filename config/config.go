package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	Storage   StorageConfig            `mapstructure:"storage"`
	Database  DatabaseConfig           `mapstructure:"database"`
	Redis     RedisConfig              `mapstructure:"redis"`
	JWT       JWTConfig                `mapstructure:"jwt"`
	AES       AESConfig                `mapstructure:"aes"`
	Log       LogConfig                `mapstructure:"log"`
	Reserve   ReserveConfig            `mapstructure:"reserve"`
	Protocol  ProtocolConfig           `mapstructure:"protocol"`
	Crank     CrankConfig              `mapstructure:"crank"`
	Operators []OperatorConfig         `mapstructure:"operators"`
	Security  SecurityConfig           `mapstructure:"security"`
	RateLimit map[string]RateLimitRule `mapstructure:"ratelimit"`
	Webhook   WebhookConfig            `mapstructure:"webhook"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Embedded bool   `mapstructure:"embedded"` // run an in-process server (development only)
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// ReserveConfig selects and configures the yield reserve adapter.
type ReserveConfig struct {
	Driver    string                 `mapstructure:"driver"` // http, simulated
	BaseURL   string                 `mapstructure:"base_url"`
	APIKey    string                 `mapstructure:"api_key"`
	Timeout   time.Duration          `mapstructure:"timeout"`
	Simulated SimulatedReserveConfig `mapstructure:"simulated"`
}

// SimulatedReserveConfig seeds the in-process reserve. Rates are decimal
// strings so they survive env var overrides untouched.
type SimulatedReserveConfig struct {
	MinBorrowRate      string `mapstructure:"min_borrow_rate"`
	OptimalUtilization string `mapstructure:"optimal_utilization"`
	OptimalBorrowRate  string `mapstructure:"optimal_borrow_rate"`
	MaxBorrowRate      string `mapstructure:"max_borrow_rate"`
	TakeRate           string `mapstructure:"take_rate"`
	Available          int64  `mapstructure:"available"`
	Borrowed           int64  `mapstructure:"borrowed"`
	ExchangeRate       string `mapstructure:"exchange_rate"`
}

// ProtocolConfig holds collateral sizing knobs.
type ProtocolConfig struct {
	DefaultBufferBps      int64         `mapstructure:"default_buffer_bps"`
	MaxBufferBps          int64         `mapstructure:"max_buffer_bps"`
	CollateralHorizonDays int64         `mapstructure:"collateral_horizon_days"`
	IdempotencyTTL        time.Duration `mapstructure:"idempotency_ttl"`
}

// CrankConfig drives the harvest sweeper.
type CrankConfig struct {
	OperatorID     string        `mapstructure:"operator_id"`
	HarvestAmount  int64         `mapstructure:"harvest_amount"`
	Interval       time.Duration `mapstructure:"interval"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	PageSize       int           `mapstructure:"page_size"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
}

// OperatorConfig is one HMAC-authenticated server identity.
type OperatorConfig struct {
	ID        string `mapstructure:"id"`
	Role      string `mapstructure:"role"` // admin, crank
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// SecurityConfig bounds signed operator requests.
type SecurityConfig struct {
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`
	NonceTTL           time.Duration `mapstructure:"nonce_ttl"`
}

// RateLimitRule limits one endpoint group.
type RateLimitRule struct {
	Limit  int64         `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type WebhookConfig struct {
	Timeout time.Duration   `mapstructure:"timeout"`
	Retries []time.Duration `mapstructure:"retries"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: BNPL_.
// Nested keys use underscore: BNPL_DATABASE_HOST, BNPL_CRANK_HARVEST_AMOUNT, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "yield_bnpl")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embedded", false)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "yield-bnpl")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("reserve.driver", "http")
	v.SetDefault("reserve.base_url", "http://localhost:9000")
	v.SetDefault("reserve.timeout", "10s")
	v.SetDefault("reserve.simulated.min_borrow_rate", "0")
	v.SetDefault("reserve.simulated.optimal_utilization", "0.5")
	v.SetDefault("reserve.simulated.optimal_borrow_rate", "0.16")
	v.SetDefault("reserve.simulated.max_borrow_rate", "0.5")
	v.SetDefault("reserve.simulated.take_rate", "0")
	v.SetDefault("reserve.simulated.available", 1_000_000)
	v.SetDefault("reserve.simulated.borrowed", 1_000_000)
	v.SetDefault("reserve.simulated.exchange_rate", "1")
	v.SetDefault("protocol.default_buffer_bps", 500)
	v.SetDefault("protocol.max_buffer_bps", 5000)
	v.SetDefault("protocol.collateral_horizon_days", 365)
	v.SetDefault("protocol.idempotency_ttl", "24h")
	v.SetDefault("crank.harvest_amount", 0)
	v.SetDefault("crank.interval", "1m")
	v.SetDefault("crank.rate_per_second", 10)
	v.SetDefault("crank.burst", 1)
	v.SetDefault("crank.max_concurrency", 4)
	v.SetDefault("crank.page_size", 100)
	v.SetDefault("crank.lock_ttl", "5m")
	v.SetDefault("security.timestamp_tolerance", "5m")
	v.SetDefault("security.nonce_ttl", "10m")
	v.SetDefault("webhook.timeout", "10s")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "bnpl")
	v.SetDefault("metrics.path", "/metrics")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: BNPL_DATABASE_HOST -> database.host
	v.SetEnvPrefix("BNPL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want postgres or memory", c.Storage.Driver))
	}
	switch c.Reserve.Driver {
	case "http":
		if c.Reserve.BaseURL == "" {
			errs = append(errs, errors.New("reserve.base_url is required for the http driver"))
		}
	case "simulated":
	default:
		errs = append(errs, fmt.Errorf("reserve.driver %q: want http or simulated", c.Reserve.Driver))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if len(c.AES.Key) != 64 {
		errs = append(errs, errors.New("aes.key must be 64 hex characters"))
	}
	if c.Protocol.DefaultBufferBps < 0 || c.Protocol.DefaultBufferBps > c.Protocol.MaxBufferBps {
		errs = append(errs, fmt.Errorf("protocol.default_buffer_bps %d outside [0, max_buffer_bps]", c.Protocol.DefaultBufferBps))
	}
	if c.Protocol.CollateralHorizonDays <= 0 {
		errs = append(errs, errors.New("protocol.collateral_horizon_days must be positive"))
	}
	return errors.Join(errs...)
}
