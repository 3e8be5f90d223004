package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carecenter/carecenter/internal/domain/attendance"
)

const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	RedisPrefix    string        `mapstructure:"REDIS_PREFIX"`
	AMQPURL        string        `mapstructure:"AMQP_URL"`
	AMQPExchange   string        `mapstructure:"AMQP_EXCHANGE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogFile       string `mapstructure:"LOG_FILE"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`

	Timezone             string        `mapstructure:"TIMEZONE"`
	AgendaWindowDays     int           `mapstructure:"AGENDA_WINDOW_DAYS"`
	DuplicateCheckPolicy string        `mapstructure:"DUPLICATE_CHECK_POLICY"`
	ClosureLockTTL       time.Duration `mapstructure:"CLOSURE_LOCK_TTL"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "REDIS_PREFIX", "AMQP_URL", "AMQP_EXCHANGE",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "CORS_ORIGINS", "REQUEST_TIMEOUT",
	"LOG_LEVEL", "LOG_FILE", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
	"TIMEZONE", "AGENDA_WINDOW_DAYS", "DUPLICATE_CHECK_POLICY", "CLOSURE_LOCK_TTL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // "" -> inferred from ENV
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("REDIS_PREFIX", "carecenter")
	v.SetDefault("AMQP_EXCHANGE", "carecenter.events")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 7)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("AGENDA_WINDOW_DAYS", attendance.DefaultAgendaWindow)
	v.SetDefault("DUPLICATE_CHECK_POLICY", string(attendance.DuplicateAllDates))
	v.SetDefault("CLOSURE_LOCK_TTL", "30s")

	// Bind explicitly so Unmarshal sees env-only keys.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" for
// ENV=development and "jwt" for everything else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// Location loads TIMEZONE. Clinic dates are calendar days in this zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate refuses configurations that would start an unauthenticated or
// misconfigured server.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE=development is not allowed when ENV=production")
		}
	case AuthModeJWT:
		if len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 characters when AUTH_MODE is %q", mode)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max > 0", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.AgendaWindowDays <= 0 {
		return fmt.Errorf("AGENDA_WINDOW_DAYS must be positive, got %d", c.AgendaWindowDays)
	}
	if !attendance.DuplicatePolicy(c.DuplicateCheckPolicy).Valid() {
		return fmt.Errorf("DUPLICATE_CHECK_POLICY must be %q or %q, got %q",
			attendance.DuplicateAllDates, attendance.DuplicateTodayOnly, c.DuplicateCheckPolicy)
	}
	if c.ClosureLockTTL <= 0 {
		return fmt.Errorf("CLOSURE_LOCK_TTL must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
