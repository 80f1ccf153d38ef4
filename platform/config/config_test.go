package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/hotline")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("CORS_ORIGINS", "https://app.example.com")
	for _, key := range []string{"APP_ENV", "REDIS_URL", "SMTP_HOST", "TWILIO_SIGNATURE_BYPASS", "AUTH_DEV_BYPASS", "HOTLINE_RATE_LIMIT", "HOTLINE_RATE_WINDOW", "HOTLINE_STALE_AFTER", "HOTLINE_REAP_INTERVAL", "DEFAULT_PHONE_REGION", "DATABASE_MAX_CONNS", "DATABASE_STATEMENT_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("APP_ENV", "development")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GetActivationLimit() != 4 || cfg.GetActivationWindow() != time.Minute {
		t.Fatalf("unexpected activation limit %d/%s", cfg.GetActivationLimit(), cfg.GetActivationWindow())
	}
	if cfg.GetStaleAfter() != 30*time.Minute || cfg.GetReapInterval() != time.Minute {
		t.Fatalf("unexpected reaper timings %s/%s", cfg.GetStaleAfter(), cfg.GetReapInterval())
	}
	if cfg.IsProduction() || cfg.IsRedisEnabled() || cfg.IsSMTPEnabled() {
		t.Fatal("expected development defaults")
	}
	if cfg.GetDefaultPhoneRegion() != "US" {
		t.Fatalf("unexpected phone region %q", cfg.GetDefaultPhoneRegion())
	}
	if cfg.GetDatabaseMaxConns() != 10 || cfg.GetDatabaseStatementTimeout() != 5*time.Second {
		t.Fatalf("unexpected pool settings %d/%s", cfg.GetDatabaseMaxConns(), cfg.GetDatabaseStatementTimeout())
	}
}

func TestLoadRejectsNonPositivePoolSettings(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_STATEMENT_TIMEOUT", "0s")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero statement timeout to be rejected")
	}
}

func TestLoadRequiresDatabaseAndSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing DATABASE_URL to fail")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/hotline")
	t.Setenv("JWT_ACCESS_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing JWT_ACCESS_SECRET to fail")
	}
}

func TestLoadRejectsBypassInProduction(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_SIGNATURE_BYPASS", "true")

	if _, err := Load(); err == nil {
		t.Fatal("expected signature bypass to be rejected in production")
	}

	t.Setenv("TWILIO_SIGNATURE_BYPASS", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production")
	}
}

func TestLoadRejectsNonPositiveRateLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("HOTLINE_RATE_LIMIT", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected zero rate limit to fail")
	}
}

func TestWildcardOriginEnablesAllowAll(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.GetCORSAllowAll() {
		t.Fatal("expected wildcard origin to allow all")
	}
}
