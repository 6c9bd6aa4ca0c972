package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.ExchangeName != "AURA.Shared.Messaging.Events:ImageUploadedIntegrationEvent" {
		t.Fatalf("unexpected exchange %q", cfg.ExchangeName)
	}
	if cfg.Strategy != StrategyAuto {
		t.Fatalf("unexpected strategy %q", cfg.Strategy)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Fatalf("unexpected fetch timeout %v", cfg.FetchTimeout)
	}
	if cfg.JWTSecret != "" {
		t.Fatal("JWT secret must default to empty (auth disabled)")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("ANALYSIS_STRATEGY", StrategyClassifier)
	t.Setenv("FETCH_TIMEOUT_SECONDS", "3")
	t.Setenv("UPLOAD_EXCHANGE", "custom-exchange")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.Strategy != StrategyClassifier {
		t.Fatalf("unexpected strategy %q", cfg.Strategy)
	}
	if cfg.FetchTimeout != 3*time.Second {
		t.Fatalf("unexpected fetch timeout %v", cfg.FetchTimeout)
	}
	if cfg.ExchangeName != "custom-exchange" {
		t.Fatalf("unexpected exchange %q", cfg.ExchangeName)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Fatal("JWT secret not picked up")
	}
}

func TestLoadIgnoresInvalidTimeout(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT_SECONDS", "zero")
	if cfg := Load(); cfg.FetchTimeout != 15*time.Second {
		t.Fatalf("invalid timeout should fall back, got %v", cfg.FetchTimeout)
	}
}
