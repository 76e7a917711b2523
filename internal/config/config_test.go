package config

import (
	"testing"
	"time"
)

func TestLoadRequiresSigningKey(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected missing signing key to fail load")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PD_TOKEN_SIGNING_KEY", "test-key")
	t.Setenv("PD_HTTP_ADDR", ":9100")
	t.Setenv("PD_DEV_MODE", "false")
	t.Setenv("PD_DB_DSN", "postgres://localhost/parishdesk")
	t.Setenv("PD_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PD_SIGN_IN_URL", "/login")
	t.Setenv("PD_RATE_LIMIT_AUTHENTICATED", "300")
	t.Setenv("PD_RATE_LIMIT_UNAUTHENTICATED", "25")
	t.Setenv("PD_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("PD_RATE_LIMIT_BYPASS", "/static/, /healthz")
	t.Setenv("PD_PUBLIC_PATHS", "/login,/signup")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("expected http addr override")
	}
	if cfg.Dev.Mode {
		t.Fatalf("expected dev mode false")
	}
	if cfg.Database.DSN != "postgres://localhost/parishdesk" {
		t.Fatalf("expected database dsn override")
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" {
		t.Fatalf("expected redis url override")
	}
	if cfg.Auth.SignInURL != "/login" {
		t.Fatalf("expected sign-in url override")
	}
	if cfg.RateLimit.AuthenticatedLimit != 300 {
		t.Fatalf("expected authenticated limit override")
	}
	if cfg.RateLimit.UnauthenticatedLimit != 25 {
		t.Fatalf("expected unauthenticated limit override")
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected window override")
	}
	if len(cfg.RateLimit.BypassPrefixes) != 2 || cfg.RateLimit.BypassPrefixes[0] != "/static/" {
		t.Fatalf("unexpected bypass prefixes: %v", cfg.RateLimit.BypassPrefixes)
	}
	if len(cfg.Auth.PublicPaths) != 2 || cfg.Auth.PublicPaths[1] != "/signup" {
		t.Fatalf("unexpected public paths: %v", cfg.Auth.PublicPaths)
	}
}

func TestDefaultProfiles(t *testing.T) {
	cfg := Default()
	if cfg.RateLimit.AuthenticatedLimit != 200 {
		t.Fatalf("expected authenticated default 200, got %d", cfg.RateLimit.AuthenticatedLimit)
	}
	if cfg.RateLimit.UnauthenticatedLimit != 50 {
		t.Fatalf("expected unauthenticated default 50, got %d", cfg.RateLimit.UnauthenticatedLimit)
	}
	if cfg.RateLimit.Window != 60*time.Second {
		t.Fatalf("expected 60s window, got %v", cfg.RateLimit.Window)
	}
}
