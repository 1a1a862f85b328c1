package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"frontdesk/internal/domain"
)

const (
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultHTTPAddr        = ":8080"
	defaultDatabaseURL     = "file:frontdesk.db?cache=shared"
	defaultJWTTTL          = "12h"
	defaultLockTTL         = "2m"
	defaultBillingTimeout  = "20s"
	defaultBillingCurrency = "ILS"

	// A locked action makes at most this many provider calls in sequence:
	// tenant login plus up to two requests.
	lockedBillingCalls = 3
	lockTimeoutMargin  = 30 * time.Second
)

type TenantCredentials struct {
	APIKey    string
	APISecret string
}

type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string
	LogLevel    string

	JWTSecret string
	JWTTTL    time.Duration

	// CardVaultKey is a hex encoded 32 byte key for stored cards.
	CardVaultKey string

	RedisAddr     string
	RedisPassword string
	RedisLockDB   int

	BookingLockTTL time.Duration

	BillingBaseURL       string
	BillingTimeout       time.Duration
	BillingRatePerSecond float64
	BillingCurrency      string
	BillingTenants       map[domain.Location]TenantCredentials

	CORSAllowedOrigins []string
}

// Load reads .env (if present), an optional config.yaml and the process
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "dev")
	v.SetDefault("HTTP_ADDR", defaultHTTPAddr)
	v.SetDefault("DATABASE_URL", defaultDatabaseURL)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_TTL", defaultJWTTTL)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_LOCK_DB", 3)
	v.SetDefault("BOOKING_LOCK_TTL", defaultLockTTL)
	v.SetDefault("BILLING_TIMEOUT", defaultBillingTimeout)
	v.SetDefault("BILLING_RATE_PER_SECOND", 5)
	v.SetDefault("BILLING_CURRENCY", defaultBillingCurrency)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		AppEnv:               strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		HTTPAddr:             strings.TrimSpace(v.GetString("HTTP_ADDR")),
		DatabaseURL:          strings.TrimSpace(v.GetString("DATABASE_URL")),
		LogLevel:             strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		JWTSecret:            strings.TrimSpace(v.GetString("JWT_SECRET")),
		CardVaultKey:         strings.TrimSpace(v.GetString("CARD_VAULT_KEY")),
		RedisAddr:            strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisLockDB:          v.GetInt("REDIS_LOCK_DB"),
		BillingBaseURL:       strings.TrimRight(strings.TrimSpace(v.GetString("BILLING_BASE_URL")), "/"),
		BillingRatePerSecond: v.GetFloat64("BILLING_RATE_PER_SECOND"),
		BillingCurrency:      strings.ToUpper(strings.TrimSpace(v.GetString("BILLING_CURRENCY"))),
		BillingTenants:       make(map[domain.Location]TenantCredentials),
		CORSAllowedOrigins:   splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "dev"
	}

	var err error
	if cfg.JWTTTL, err = parseDuration(v, "JWT_TTL"); err != nil {
		return nil, err
	}
	if cfg.BookingLockTTL, err = parseDuration(v, "BOOKING_LOCK_TTL"); err != nil {
		return nil, err
	}
	if cfg.BillingTimeout, err = parseDuration(v, "BILLING_TIMEOUT"); err != nil {
		return nil, err
	}

	for _, loc := range domain.Locations() {
		prefix := "BILLING_TENANTS_" + strings.ToUpper(string(loc))
		creds := TenantCredentials{
			APIKey:    strings.TrimSpace(v.GetString(prefix + "_API_KEY")),
			APISecret: strings.TrimSpace(v.GetString(prefix + "_API_SECRET")),
		}
		if creds.APIKey != "" || creds.APISecret != "" {
			cfg.BillingTenants[loc] = creds
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR must not be empty")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be > 0")
	}
	if cfg.BookingLockTTL <= 0 {
		return fmt.Errorf("BOOKING_LOCK_TTL must be > 0")
	}
	if cfg.BillingTimeout <= 0 {
		return fmt.Errorf("BILLING_TIMEOUT must be > 0")
	}
	if minLock := lockedBillingCalls*cfg.BillingTimeout + lockTimeoutMargin; cfg.BookingLockTTL < minLock {
		return fmt.Errorf("BOOKING_LOCK_TTL (%s) must be at least %s for BILLING_TIMEOUT %s",
			cfg.BookingLockTTL, minLock, cfg.BillingTimeout)
	}
	if cfg.BillingRatePerSecond < 0 {
		return fmt.Errorf("BILLING_RATE_PER_SECOND must be >= 0")
	}
	if len(cfg.BillingCurrency) != 3 {
		return fmt.Errorf("BILLING_CURRENCY must be a 3 letter code")
	}
	for loc, creds := range cfg.BillingTenants {
		if creds.APIKey == "" || creds.APISecret == "" {
			return fmt.Errorf("billing tenant %s needs both API key and secret", loc)
		}
	}

	if isProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if cfg.CardVaultKey == "" {
			return fmt.Errorf("in prod/release CARD_VAULT_KEY must be set")
		}
		if cfg.BillingBaseURL == "" {
			return fmt.Errorf("in prod/release BILLING_BASE_URL must be set")
		}
		for _, loc := range domain.Locations() {
			if _, ok := cfg.BillingTenants[loc]; !ok {
				return fmt.Errorf("in prod/release billing credentials for %s must be set", loc)
			}
		}
	}

	return nil
}

// IsProduction reports whether the service runs in a prod-like environment.
func (c *Config) IsProduction() bool {
	return isProdLike(c.AppEnv)
}

func isProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDuration(v *viper.Viper, name string) (time.Duration, error) {
	value := strings.TrimSpace(v.GetString(name))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
