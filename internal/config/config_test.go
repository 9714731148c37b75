package config

import (
	"strings"
	"testing"

	"github.com/idropr/core/internal/ratelimit"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "core")
	t.Setenv("DB_PASSWORD", "hunter2")
	t.Setenv("DB_DATABASE", "core")
	t.Setenv("MASTER_PASSWORD", "correct horse battery staple")
	t.Setenv("SERVER_MODE", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("SERVER_THREADS", "")
	t.Setenv("IP_ADDRESS", "")
	t.Setenv("LIMITER_INITIAL_CAPACITY", "")
	t.Setenv("LIMITER_TOKENS_PER_BUCKET", "")
	t.Setenv("LIMITER_INITIAL_TOKENS_PER_BUCKET", "")
	t.Setenv("LIMITER_REFILL_RATE", "")
	t.Setenv("LIMITER_REFILL_WINDOW", "")
	t.Setenv("SESSIONS_INITIAL_CAPACITY", "")
}

func TestLoadRequiresDBHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_HOST", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when DB_HOST is empty")
	}
}

func TestLoadRequiresMasterPassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MASTER_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when MASTER_PASSWORD is empty")
	}
}

func TestLoadRejectsOversizedMasterPassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MASTER_PASSWORD", strings.Repeat("x", 33))

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail when MASTER_PASSWORD exceeds 32 bytes")
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IPAddress != ":8080" {
		t.Errorf("IPAddress = %q, want :8080", cfg.IPAddress)
	}
	if cfg.ServerMode != ModeDevelopment {
		t.Errorf("ServerMode = %q, want %q", cfg.ServerMode, ModeDevelopment)
	}
	if cfg.LimiterInitialCapacity != defaultLimiterInitialCapacity {
		t.Errorf("LimiterInitialCapacity = %d, want %d", cfg.LimiterInitialCapacity, defaultLimiterInitialCapacity)
	}
	if cfg.LimiterRefillRate.Kind != ratelimit.PerMinute {
		t.Errorf("LimiterRefillRate.Kind = %v, want PerMinute", cfg.LimiterRefillRate.Kind)
	}
	if cfg.SessionsInitialCapacity != defaultSessionsInitialCapacity {
		t.Errorf("SessionsInitialCapacity = %d, want %d", cfg.SessionsInitialCapacity, defaultSessionsInitialCapacity)
	}
}

func TestLoadRejectsUnknownServerMode(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_MODE", "BOGUS")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for an unrecognized SERVER_MODE")
	}
}

func TestLoadAcceptsEachServerMode(t *testing.T) {
	for _, mode := range []ServerMode{ModeDevelopment, ModeMaintenance, ModeProduction} {
		t.Run(string(mode), func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("SERVER_MODE", string(mode))

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.ServerMode != mode {
				t.Errorf("ServerMode = %q, want %q", cfg.ServerMode, mode)
			}
		})
	}
}

func TestLoadRejectsUnknownRefillWindow(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LIMITER_REFILL_WINDOW", "FORTNIGHT")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for an unrecognized LIMITER_REFILL_WINDOW")
	}
}

func TestLoadParsesEachRefillWindow(t *testing.T) {
	cases := map[string]ratelimit.RefillRateKind{
		"SECOND": ratelimit.PerSecond,
		"MINUTE": ratelimit.PerMinute,
		"HOUR":   ratelimit.PerHour,
		"DAY":    ratelimit.PerDay,
	}
	for window, kind := range cases {
		t.Run(window, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv("LIMITER_REFILL_WINDOW", window)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.LimiterRefillRate.Kind != kind {
				t.Errorf("LimiterRefillRate.Kind = %v, want %v", cfg.LimiterRefillRate.Kind, kind)
			}
		})
	}
}

func TestLoadRejectsNonPositiveRefillRate(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LIMITER_REFILL_RATE", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for a non-positive LIMITER_REFILL_RATE")
	}
}

func TestLoadRejectsNonIntegerServerThreads(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_THREADS", "not-a-number")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should fail for a non-integer SERVER_THREADS")
	}
}

func TestLoadCustomLimiterSizing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LIMITER_INITIAL_CAPACITY", "4096")
	t.Setenv("LIMITER_TOKENS_PER_BUCKET", "10")
	t.Setenv("LIMITER_INITIAL_TOKENS_PER_BUCKET", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LimiterInitialCapacity != 4096 {
		t.Errorf("LimiterInitialCapacity = %d, want 4096", cfg.LimiterInitialCapacity)
	}
	if cfg.LimiterTokensPerBucket != 10 {
		t.Errorf("LimiterTokensPerBucket = %d, want 10", cfg.LimiterTokensPerBucket)
	}
	if cfg.LimiterInitialTokensPerBucket != 10 {
		t.Errorf("LimiterInitialTokensPerBucket = %d, want 10", cfg.LimiterInitialTokensPerBucket)
	}
}

func TestEnvOrDefaultEmptyReturnsDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "")
	if got := envOrDefault("TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault() = %q, want %q", got, "fallback")
	}
}

func TestEnvOrDefaultWhitespaceReturnsDefault(t *testing.T) {
	t.Setenv("TEST_KEY", "   ")
	if got := envOrDefault("TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOrDefault() = %q, want %q", got, "fallback")
	}
}

func TestEnvOrDefaultValueReturnsTrimmedValue(t *testing.T) {
	t.Setenv("TEST_KEY", " value ")
	if got := envOrDefault("TEST_KEY", "fallback"); got != "value" {
		t.Errorf("envOrDefault() = %q, want %q", got, "value")
	}
}

func TestPostgresDSNWithoutCert(t *testing.T) {
	cfg := Config{DBHost: "localhost", DBPort: "5432", DBUser: "core", DBPassword: "hunter2", DBDatabase: "core"}
	dsn := cfg.PostgresDSN()
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("PostgresDSN() = %q, want sslmode=disable", dsn)
	}
	if !strings.Contains(dsn, "host=localhost") || !strings.Contains(dsn, "dbname=core") {
		t.Errorf("PostgresDSN() = %q, missing expected fields", dsn)
	}
}

func TestPostgresDSNWithCert(t *testing.T) {
	cfg := Config{DBHost: "localhost", DBPort: "5432", DBUser: "core", DBPassword: "hunter2", DBDatabase: "core", DBCertPath: "/etc/ssl/ca.pem"}
	dsn := cfg.PostgresDSN()
	if !strings.Contains(dsn, "sslmode=verify-full") || !strings.Contains(dsn, "sslrootcert=/etc/ssl/ca.pem") {
		t.Errorf("PostgresDSN() = %q, want verify-full with sslrootcert", dsn)
	}
}
