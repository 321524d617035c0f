package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DemoOrgID != "demo-org-id" {
		t.Fatalf("unexpected demo org default: %s", cfg.DemoOrgID)
	}
	if cfg.MaxAutomationDepth != 3 {
		t.Fatalf("expected depth 3, got %d", cfg.MaxAutomationDepth)
	}
	if cfg.SystemUser() != nil {
		t.Fatal("expected no system user by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TAVLE_PORT", "9090")
	t.Setenv("TAVLE_WEBHOOK_TIMEOUT", "3s")
	t.Setenv("SYSTEM_USER_ID", "5f8a0a8e-1cbb-4b8f-9e8e-27a2f1a6b001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.WebhookTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.WebhookTimeout)
	}
	if cfg.SystemUser() == nil {
		t.Fatal("expected system user to parse")
	}
}

func TestLoadRejectsBadSystemUser(t *testing.T) {
	t.Setenv("SYSTEM_USER_ID", "not-a-uuid")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed SYSTEM_USER_ID")
	}
}

func TestEnvIntFallbackOnGarbage(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	if v := envInt("TEST_INT_BAD", 7); v != 7 {
		t.Fatalf("expected fallback 7, got %d", v)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	if !envBool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("TEST_BOOL_BAD", "maybe")
	if envBool("TEST_BOOL_BAD", false) {
		t.Fatal("expected fallback false")
	}
}

func TestLoadEnvMode(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.IsProduction() {
		t.Fatal("expected development by default")
	}

	t.Setenv("TAVLE_ENV", "production")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("expected production mode")
	}
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("TAVLE_ENV", "staging")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown TAVLE_ENV")
	}
}
