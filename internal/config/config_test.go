package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRADE_API_URL", "")
	t.Setenv("TRADE_TOKEN", "")
	t.Setenv("POLL_INTERVAL", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("CURRENCY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://localhost:8000/api" {
		t.Errorf("APIURL = %q", cfg.APIURL)
	}
	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %s, want 15s", cfg.PollInterval)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Currency != "USD" {
		t.Errorf("Currency = %q", cfg.Currency)
	}
	if err := cfg.RequireToken(); err == nil {
		t.Error("expected RequireToken to fail without TRADE_TOKEN")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TRADE_API_URL", "https://trade.example.com/api/")
	t.Setenv("TRADE_TOKEN", "abc")
	t.Setenv("POLL_INTERVAL", "2s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CURRENCY", "eur")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "https://trade.example.com/api" {
		t.Errorf("APIURL = %q, want trailing slash trimmed", cfg.APIURL)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %s", cfg.PollInterval)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v", cfg.LogLevel)
	}
	if cfg.Currency != "EUR" {
		t.Errorf("Currency = %q", cfg.Currency)
	}
	if err := cfg.RequireToken(); err != nil {
		t.Errorf("RequireToken: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"relative url", "TRADE_API_URL", "localhost/api"},
		{"bad interval", "POLL_INTERVAL", "soon"},
		{"zero interval", "POLL_INTERVAL", "0s"},
		{"bad level", "LOG_LEVEL", "loud"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TRADE_API_URL", "")
			t.Setenv("POLL_INTERVAL", "")
			t.Setenv("LOG_LEVEL", "")
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}
