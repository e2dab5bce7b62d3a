// Package config loads service configuration from environment and optional config.yaml.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DevJWTSecret is the development signing secret. Rejected when APP_ENV=production.
const DevJWTSecret = "kabala-dev-secret-change-in-production"

type Configuration struct {
	App         AppConfig         `mapstructure:"app" validate:"required"`
	Log         LogConfig         `mapstructure:"log" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	JWT         JWTConfig         `mapstructure:"jwt" validate:"required"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Finalize    FinalizeConfig    `mapstructure:"finalize" validate:"required"`
	Worker      WorkerConfig      `mapstructure:"worker" validate:"required"`
}

type AppConfig struct {
	Env  string `mapstructure:"env" validate:"required,oneof=development test production"`
	Port string `mapstructure:"port" validate:"required,numeric"`

	// TenantCacheTTL bounds how long a tenant lookup is served from memory.
	TenantCacheTTL time.Duration `mapstructure:"tenant_cache_ttl" validate:"gte=0"`
}

// IsDevelopment reports whether pretty logging and dev defaults apply.
func (a AppConfig) IsDevelopment() bool { return a.Env == "development" }

type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

type DatabaseConfig struct {
	URL              string        `mapstructure:"url" validate:"required"`
	MaxConns         int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns         int32         `mapstructure:"min_conns" validate:"gte=0"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MigrateOnStart   bool          `mapstructure:"migrate_on_start"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	Issuer string `mapstructure:"issuer" validate:"required"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// FinalizeConfig tunes FinalizeWithRetry.
type FinalizeConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries" validate:"lte=10"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
}

type WorkerConfig struct {
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	GapReportInterval time.Duration `mapstructure:"gap_report_interval" validate:"gt=0"`
	Concurrency       int           `mapstructure:"concurrency" validate:"gte=1"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.tenant_cache_ttl", time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.statement_timeout", 30*time.Second)
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("jwt.secret", DevJWTSecret)
	v.SetDefault("jwt.issuer", "kabala")
	v.SetDefault("idempotency.enabled", false)
	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("finalize.max_retries", 3)
	v.SetDefault("finalize.initial_interval", 100*time.Millisecond)
	v.SetDefault("finalize.max_interval", 2*time.Second)
	v.SetDefault("worker.cleanup_interval", time.Hour)
	v.SetDefault("worker.gap_report_interval", 15*time.Minute)
	v.SetDefault("worker.concurrency", 4)
}

// Load reads config.yaml (if any) and environment. APP_ENV, APP_PORT, LOG_LEVEL,
// DATABASE_URL, JWT_SECRET, IDEMPOTENCY_ENABLED and friends map onto the nested keys.
func Load() (*Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/kabala")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Configuration, error) {
	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Configuration) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.App.Env == "production" && c.JWT.Secret == DevJWTSecret {
		return errors.New("invalid config: JWT_SECRET must be set in production")
	}
	return nil
}
