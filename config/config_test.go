package config

import (
	"strings"
	"testing"
)

// setRequiredEnv populates the minimum environment LoadConfig accepts and
// clears the optional variables so defaults are observable.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/alerts_test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "bot-token")
	t.Setenv("TIINGO_API_TOKEN", "data-token")
	for _, key := range []string{
		"PORT", "TELEGRAM_WEBHOOK_SECRET", "ADMIN_USERNAME", "ADMIN_PASSWORD",
		"JWT_SECRET", "REQUEST_DELAY_SECONDS", "CACHE_HOURS", "ALERT_CHECK_TIME",
		"ENVIRONMENT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.AlertCheckTime != "16:30" {
		t.Errorf("expected default check time 16:30, got %q", cfg.AlertCheckTime)
	}
	if cfg.RequestDelaySeconds != 3.0 {
		t.Errorf("expected default request delay 3.0, got %g", cfg.RequestDelaySeconds)
	}
	if cfg.CacheHours != 1 {
		t.Errorf("expected default cache hours 1, got %d", cfg.CacheHours)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected default environment development, got %q", cfg.Environment)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TIINGO_API_TOKEN", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing TIINGO_API_TOKEN")
	} else if !strings.Contains(err.Error(), "TIINGO_API_TOKEN") {
		t.Fatalf("error should name the missing variable, got %v", err)
	}
}

// Admin credentials without a signing secret would leave the admin API
// verifying tokens against an empty key; startup must refuse instead.
func TestLoadConfigAdminRequiresJWTSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "hunter2")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for admin credentials without JWT_SECRET")
	} else if !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("error should name JWT_SECRET, got %v", err)
	}

	t.Setenv("JWT_SECRET", "signing-secret")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed with secret set: %v", err)
	}
	if cfg.JWTSecret != "signing-secret" {
		t.Fatalf("unexpected JWT secret %q", cfg.JWTSecret)
	}
}

func TestLoadConfigInvalidNumericFallsBack(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REQUEST_DELAY_SECONDS", "not-a-number")
	t.Setenv("CACHE_HOURS", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.RequestDelaySeconds != 3.0 {
		t.Errorf("expected fallback request delay 3.0, got %g", cfg.RequestDelaySeconds)
	}
	if cfg.CacheHours != 1 {
		t.Errorf("expected fallback cache hours 1, got %d", cfg.CacheHours)
	}
}
