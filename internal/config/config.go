package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL       string        // trading backend base URL, e.g. http://localhost:8000/api
	Token        string        // bearer credential, opaque
	PollInterval time.Duration // price refresh cadence
	ListenAddr   string
	DBPath       string // SQLite transaction mirror
	OutputDir    string // price tape directory, empty disables recording
	Currency     string // ISO code used when formatting cash
	LogLevel     slog.Level
}

// RequireToken reports whether a bearer credential is configured.
func (c *Config) RequireToken() error {
	if c.Token == "" {
		return fmt.Errorf("TRADE_TOKEN is required (run 'tradedesk login' to obtain one)")
	}
	return nil
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:     strings.TrimRight(getEnvDefault("TRADE_API_URL", "http://localhost:8000/api"), "/"),
		Token:      os.Getenv("TRADE_TOKEN"),
		ListenAddr: getEnvDefault("LISTEN_ADDR", ":8080"),
		DBPath:     getEnvDefault("DB_PATH", "data/tradelog.db"),
		OutputDir:  os.Getenv("OUTPUT_DIR"),
		Currency:   strings.ToUpper(getEnvDefault("CURRENCY", "USD")),
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("TRADE_API_URL must be an absolute URL, got %q", cfg.APIURL)
	}

	interval, err := time.ParseDuration(getEnvDefault("POLL_INTERVAL", "15s"))
	if err != nil {
		return nil, fmt.Errorf("POLL_INTERVAL: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive, got %s", interval)
	}
	cfg.PollInterval = interval

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnvDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
