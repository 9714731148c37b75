package config

import (
	"strconv"
	"strings"
	"testing"
)

func FuzzEnvOrDefault(f *testing.F) {
	f.Add("", ":8080")
	f.Add("  :9090  ", ":8080")

	f.Fuzz(func(t *testing.T, value, fallback string) {
		if strings.ContainsRune(value, '\x00') {
			t.Skip()
		}

		const key = "CORE_TEST_ENV_OR_DEFAULT"
		t.Setenv(key, value)

		got := envOrDefault(key, fallback)
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			if got != fallback {
				t.Fatalf("envOrDefault() = %q, want fallback %q", got, fallback)
			}
			return
		}

		if got != trimmed {
			t.Fatalf("envOrDefault() = %q, want trimmed value %q", got, trimmed)
		}
	})
}

func FuzzLoadLimiterRefillRate(f *testing.F) {
	f.Add("")
	f.Add("1")
	f.Add("0")
	f.Add("-1")
	f.Add("not-a-number")

	f.Fuzz(func(t *testing.T, refillRate string) {
		if strings.ContainsRune(refillRate, '\x00') {
			t.Skip()
		}

		setRequiredEnv(t)
		t.Setenv("LIMITER_REFILL_RATE", refillRate)

		cfg, err := Load()
		trimmed := strings.TrimSpace(refillRate)
		if trimmed == "" {
			if err != nil {
				t.Fatalf("Load() error = %v, want nil for empty LIMITER_REFILL_RATE", err)
			}
			if cfg.LimiterRefillRate.Amount != defaultLimiterRefillRate {
				t.Fatalf("LimiterRefillRate.Amount = %v, want %v", cfg.LimiterRefillRate.Amount, defaultLimiterRefillRate)
			}
			return
		}

		parsed, parseErr := strconv.ParseFloat(trimmed, 64)
		if parseErr != nil || parsed <= 0 {
			if err == nil {
				t.Fatalf("Load() error = nil, want non-nil for LIMITER_REFILL_RATE=%q", refillRate)
			}
			return
		}

		if err != nil {
			t.Fatalf("Load() error = %v, want nil for LIMITER_REFILL_RATE=%q", err, refillRate)
		}
		if cfg.LimiterRefillRate.Amount != parsed {
			t.Fatalf("LimiterRefillRate.Amount = %v, want %v", cfg.LimiterRefillRate.Amount, parsed)
		}
	})
}
