package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName             = "Bondify"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultLockTimeout         = 5 * time.Second
	defaultTxMaxRetries        = 3
	defaultEventsExchange      = "bond_events"
	defaultWindowSweep         = "@every 1m"
	defaultMaturitySweep       = "@every 5m"
	defaultMaturityConcurrency = 4
	defaultKYCSubmitPerMinute  = 3
	idemTTLSecondsEnvVar       = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar           = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar      = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar     = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	RabbitMQURL    string
	EventsExchange string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// LockTimeout bounds how long a ledger transaction waits for a row lock
	// before failing with a contention error.
	LockTimeout  time.Duration
	TxMaxRetries int

	WindowSweepSchedule   string
	MaturitySweepSchedule string
	MaturityConcurrency   int
	KYCSubmitPerMinute    int
}

// Load reads configuration values from the environment and populates a
// Config instance. A .env file in the working directory is applied first
// when present; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		RabbitMQURL:           os.Getenv("RABBITMQ_URL"),
		EventsExchange:        getEnv("EVENTS_EXCHANGE", defaultEventsExchange),
		ShutdownPeriod:        defaultShutdownDelay,
		IdempotencyTTL:        defaultIdempotencyTTL,
		LockTimeout:           defaultLockTimeout,
		TxMaxRetries:          defaultTxMaxRetries,
		WindowSweepSchedule:   getEnv("WINDOW_SWEEP_SCHEDULE", defaultWindowSweep),
		MaturitySweepSchedule: getEnv("MATURITY_SWEEP_SCHEDULE", defaultMaturitySweep),
		MaturityConcurrency:   defaultMaturityConcurrency,
		KYCSubmitPerMinute:    defaultKYCSubmitPerMinute,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("LOCK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("invalid LOCK_TIMEOUT %q", v)
		}
		cfg.LockTimeout = d
	}
	if cfg.TxMaxRetries, err = intEnv("TX_MAX_RETRIES", cfg.TxMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.MaturityConcurrency, err = intEnv("MATURITY_SWEEP_CONCURRENCY", cfg.MaturityConcurrency); err != nil {
		return Config{}, err
	}
	if cfg.KYCSubmitPerMinute, err = intEnv("KYC_SUBMIT_PER_MINUTE", cfg.KYCSubmitPerMinute); err != nil {
		return Config{}, err
	}

	if !cfg.IsDev() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDev reports whether the service may run without external backends.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv prefers a whole-seconds variable over a Go duration string.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}
