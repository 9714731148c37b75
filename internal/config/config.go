// Package config loads server configuration from environment variables.
//
// Required variables:
//   - DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_DATABASE: PostgreSQL
//     connection parameters.
//   - MASTER_PASSWORD: the key material for internal/secretcodec, at most
//     32 bytes.
//
// Optional variables:
//   - DB_CERT_PATH: TLS root certificate for the database connection.
//   - IP_ADDRESS: listen address for the HTTP server (default ":8080").
//   - SERVER_MODE: one of DEVELOPMENT, MAINTENANCE, PRODUCTION (default
//     DEVELOPMENT).
//   - SERVER_PORT: when set, the server listens on ":"+SERVER_PORT (all
//     interfaces) in place of IP_ADDRESS.
//   - SERVER_THREADS: worker count used to size rate limiter and session
//     controller shard counts (default: number of CPUs).
//   - LIMITER_INITIAL_CAPACITY, LIMITER_TOKENS_PER_BUCKET,
//     LIMITER_INITIAL_TOKENS_PER_BUCKET, LIMITER_REFILL_RATE,
//     LIMITER_REFILL_WINDOW: rate limiter sizing (defaults below).
//   - SESSIONS_INITIAL_CAPACITY: session controller sizing hint.
//   - LOG_LEVEL: one of debug, info, warn, error (default info).
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/idropr/core/internal/ratelimit"
)

const (
	defaultIPAddress               = ":8080"
	defaultServerMode               = ModeDevelopment
	defaultLimiterInitialCapacity   = 1024
	defaultLimiterTokensPerBucket   int32 = 60
	defaultLimiterInitialTokens     int32 = 60
	defaultLimiterRefillRate        = 1.0
	defaultLimiterRefillWindow      = "MINUTE"
	defaultSessionsInitialCapacity  = 1024
)

// ServerMode gates which behaviors are active: MAINTENANCE rejects
// non-health traffic at the handler layer; DEVELOPMENT and PRODUCTION
// handle requests identically.
type ServerMode string

const (
	ModeDevelopment ServerMode = "DEVELOPMENT"
	ModeMaintenance ServerMode = "MAINTENANCE"
	ModeProduction  ServerMode = "PRODUCTION"
)

// Config holds the runtime configuration for the core server.
type Config struct {
	DBCertPath string
	DBUser     string
	DBPort     string
	DBDatabase string
	DBPassword string
	DBHost     string

	IPAddress      string
	MasterPassword string
	ServerMode     ServerMode
	ServerPort     string
	ServerThreads  int
	LogLevel       string

	LimiterInitialCapacity        int
	LimiterTokensPerBucket        int32
	LimiterInitialTokensPerBucket int32
	LimiterRefillRate             ratelimit.RefillRate

	SessionsInitialCapacity int
}

// Load reads configuration from environment variables, applying defaults
// where allowed. Missing required variables or out-of-range enums are
// returned as an error for main to log and exit on.
func Load() (Config, error) {
	cfg := Config{
		DBCertPath: strings.TrimSpace(os.Getenv("DB_CERT_PATH")),
		DBUser:     strings.TrimSpace(os.Getenv("DB_USER")),
		DBPort:     strings.TrimSpace(os.Getenv("DB_PORT")),
		DBDatabase: strings.TrimSpace(os.Getenv("DB_DATABASE")),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBHost:     strings.TrimSpace(os.Getenv("DB_HOST")),
	}

	for name, value := range map[string]string{
		"DB_USER": cfg.DBUser, "DB_PORT": cfg.DBPort,
		"DB_DATABASE": cfg.DBDatabase, "DB_HOST": cfg.DBHost,
		"DB_PASSWORD": cfg.DBPassword,
	} {
		if value == "" {
			return Config{}, fmt.Errorf("config: %s is required", name)
		}
	}

	cfg.MasterPassword = os.Getenv("MASTER_PASSWORD")
	if cfg.MasterPassword == "" {
		return Config{}, errors.New("config: MASTER_PASSWORD is required")
	}
	if len(cfg.MasterPassword) > 32 {
		return Config{}, errors.New("config: MASTER_PASSWORD exceeds 32 bytes")
	}

	mode := ServerMode(strings.ToUpper(strings.TrimSpace(os.Getenv("SERVER_MODE"))))
	if mode == "" {
		mode = defaultServerMode
	}
	switch mode {
	case ModeDevelopment, ModeMaintenance, ModeProduction:
		cfg.ServerMode = mode
	default:
		return Config{}, fmt.Errorf("config: SERVER_MODE %q is not one of DEVELOPMENT, MAINTENANCE, PRODUCTION", mode)
	}

	cfg.IPAddress = envOrDefault("IP_ADDRESS", defaultIPAddress)
	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	cfg.LogLevel = envOrDefault("LOG_LEVEL", "info")

	cfg.ServerThreads = runtime.NumCPU()
	if v := strings.TrimSpace(os.Getenv("SERVER_THREADS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, errors.New("config: SERVER_THREADS must be a positive integer")
		}
		cfg.ServerThreads = n
	}

	cfg.LimiterInitialCapacity = defaultLimiterInitialCapacity
	if v := strings.TrimSpace(os.Getenv("LIMITER_INITIAL_CAPACITY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, errors.New("config: LIMITER_INITIAL_CAPACITY must be a positive integer")
		}
		cfg.LimiterInitialCapacity = n
	}

	tokensPerBucket, err := parseInt32Env("LIMITER_TOKENS_PER_BUCKET", defaultLimiterTokensPerBucket)
	if err != nil {
		return Config{}, err
	}
	cfg.LimiterTokensPerBucket = tokensPerBucket

	initialTokens, err := parseInt32Env("LIMITER_INITIAL_TOKENS_PER_BUCKET", defaultLimiterInitialTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LimiterInitialTokensPerBucket = initialTokens

	refillRate := defaultLimiterRefillRate
	if v := strings.TrimSpace(os.Getenv("LIMITER_REFILL_RATE")); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return Config{}, errors.New("config: LIMITER_REFILL_RATE must be a positive number")
		}
		refillRate = parsed
	}

	windowKind, err := parseRefillWindow(envOrDefault("LIMITER_REFILL_WINDOW", defaultLimiterRefillWindow))
	if err != nil {
		return Config{}, err
	}
	cfg.LimiterRefillRate = ratelimit.RefillRate{Kind: windowKind, Amount: refillRate}

	cfg.SessionsInitialCapacity = defaultSessionsInitialCapacity
	if v := strings.TrimSpace(os.Getenv("SESSIONS_INITIAL_CAPACITY")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, errors.New("config: SESSIONS_INITIAL_CAPACITY must be a positive integer")
		}
		cfg.SessionsInitialCapacity = n
	}

	return cfg, nil
}

func parseInt32Env(key string, fallback int32) (int32, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return int32(n), nil
}

func parseRefillWindow(value string) (ratelimit.RefillRateKind, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "SECOND":
		return ratelimit.PerSecond, nil
	case "MINUTE":
		return ratelimit.PerMinute, nil
	case "HOUR":
		return ratelimit.PerHour, nil
	case "DAY":
		return ratelimit.PerDay, nil
	default:
		return 0, fmt.Errorf("config: LIMITER_REFILL_WINDOW %q is not one of SECOND, MINUTE, HOUR, DAY", value)
	}
}

// PostgresDSN assembles a libpq-style connection string from the split
// DB_* fields, the form pgxpool.New expects.
func (c Config) PostgresDSN() string {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBDatabase)
	if c.DBCertPath != "" {
		dsn += fmt.Sprintf(" sslmode=verify-full sslrootcert=%s", c.DBCertPath)
	} else {
		dsn += " sslmode=disable"
	}
	return dsn
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
