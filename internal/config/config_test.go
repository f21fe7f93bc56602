package config

import (
	"encoding/hex"
	"os"
	"testing"

	"github.com/spf13/viper"
)

// setEnvWithCleanup sets an environment variable and restores the previous
// value when the test finishes.
func setEnvWithCleanup(t *testing.T, key, value string) {
	t.Helper()
	previous, existed := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set %s: %v", key, err)
	}
	t.Cleanup(func() {
		if existed {
			os.Setenv(key, previous)
		} else {
			os.Unsetenv(key)
		}
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	previous, existed := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if existed {
			os.Setenv(key, previous)
		}
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	for _, key := range []string{"SERVER_PORT", "PORT", "SYNC_EVENT_EXCHANGE", "BANK_REDIRECT_URI", "CACHE_TTL_SECONDS", "UPSTREAM_TIMEOUT_SECONDS", "DEDUP_TIMEOUT_SECONDS"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.ServerPort)
	}
	if cfg.SyncEventExchange != "aggregator.events" {
		t.Errorf("expected default exchange, got %s", cfg.SyncEventExchange)
	}
	if cfg.BankRedirectURI != "http://localhost:3000/callback" {
		t.Errorf("expected default redirect URI, got %s", cfg.BankRedirectURI)
	}
	if cfg.CacheTTLSeconds != 86400 {
		t.Errorf("expected default cache ttl 86400, got %d", cfg.CacheTTLSeconds)
	}
	if cfg.UpstreamTimeoutSeconds != 30 || cfg.DedupTimeoutSeconds != 5 {
		t.Errorf("unexpected default timeouts: %d, %d", cfg.UpstreamTimeoutSeconds, cfg.DedupTimeoutSeconds)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	viper.Reset()
	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "DATABASE_URL", "postgres://localhost:5432/aggregator")
	setEnvWithCleanup(t, "REDIS_URL", "  redis://localhost:6379  ")
	setEnvWithCleanup(t, "CACHE_TTL_SECONDS", "120")
	setEnvWithCleanup(t, "SESSION_TOKEN_SECRET", "session-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServerPort != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/aggregator" {
		t.Errorf("unexpected database url: %s", cfg.DatabaseURL)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("expected trimmed redis url, got %q", cfg.RedisURL)
	}
	if cfg.CacheTTLSeconds != 120 {
		t.Errorf("expected cache ttl 120, got %d", cfg.CacheTTLSeconds)
	}
	if cfg.SessionTokenSecret != "session-secret" {
		t.Errorf("unexpected session secret: %q", cfg.SessionTokenSecret)
	}
}

func TestLoadConfig_PortEnvTakesPrecedence(t *testing.T) {
	viper.Reset()
	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "PORT", "3001")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ServerPort != "3001" {
		t.Errorf("expected PORT to win, got %s", cfg.ServerPort)
	}
}

func TestLoadConfig_ProviderAliasKeys(t *testing.T) {
	viper.Reset()
	unsetEnvWithCleanup(t, "BANK_CLIENT_ID")
	unsetEnvWithCleanup(t, "BANK_CLIENT_SECRET")
	setEnvWithCleanup(t, "CLIENT_ID", "sandbox-client")
	setEnvWithCleanup(t, "CLIENT_SECRET", "sandbox-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BankClientID != "sandbox-client" {
		t.Errorf("expected CLIENT_ID alias to bind, got %q", cfg.BankClientID)
	}
	if cfg.BankClientSecret != "sandbox-secret" {
		t.Errorf("expected CLIENT_SECRET alias to bind, got %q", cfg.BankClientSecret)
	}
}

func TestLoadConfig_NonPositiveTTLFallsBack(t *testing.T) {
	viper.Reset()
	setEnvWithCleanup(t, "CACHE_TTL_SECONDS", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheTTLSeconds != 86400 {
		t.Errorf("expected fallback ttl 86400, got %d", cfg.CacheTTLSeconds)
	}
}

func TestTokenSealKey(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	cfg := Config{TokenSealKeyHex: hex.EncodeToString(key)}
	decoded, err := cfg.TokenSealKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(decoded))
	}

	for _, tc := range []struct {
		name string
		hex  string
	}{
		{"empty", ""},
		{"not hex", "zz"},
		{"wrong length", "0badc0de"},
	} {
		cfg := Config{TokenSealKeyHex: tc.hex}
		if _, err := cfg.TokenSealKey(); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
