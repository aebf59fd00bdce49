package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadUsesDefaultsAndYAMLOverrides(t *testing.T) {
	clearConfigEnv(t)

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	yaml := `
http:
  addr: ":9090"
telegram:
  app_id: 12345
  app_hash: abcdef
  poll_timeout: 5s
  qr_per_minute: 2
cleanup:
  interval: 1h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("unexpected http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.Telegram.AppID != 12345 || cfg.Telegram.AppHash != "abcdef" {
		t.Fatalf("unexpected telegram credentials: %d/%s", cfg.Telegram.AppID, cfg.Telegram.AppHash)
	}
	if cfg.Telegram.PollTimeout != 5*time.Second {
		t.Fatalf("unexpected poll timeout: %s", cfg.Telegram.PollTimeout)
	}
	if cfg.Telegram.QRPerMinute != 2 {
		t.Fatalf("unexpected qr_per_minute: %d", cfg.Telegram.QRPerMinute)
	}
	if cfg.Cleanup.Interval != time.Hour {
		t.Fatalf("unexpected cleanup interval: %s", cfg.Cleanup.Interval)
	}

	// Untouched values keep their defaults.
	if cfg.Telegram.IdleTTL != 10*time.Minute {
		t.Fatalf("idle_ttl default should stay 10m, got %s", cfg.Telegram.IdleTTL)
	}
	if cfg.Telegram.QRPerHour != 30 {
		t.Fatalf("qr_per_hour default should stay 30, got %d", cfg.Telegram.QRPerHour)
	}
	if cfg.Telegram.DemoEnabled() {
		t.Fatal("credentials are set, demo mode should be off")
	}
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config with missing file: %v", err)
	}

	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("unexpected default http addr: %s", cfg.HTTP.Addr)
	}
	if cfg.Telegram.PollTimeout != 3*time.Second {
		t.Fatalf("unexpected default poll timeout: %s", cfg.Telegram.PollTimeout)
	}
	if cfg.Telegram.MaxLifetime != time.Hour {
		t.Fatalf("unexpected default max lifetime: %s", cfg.Telegram.MaxLifetime)
	}
	if !cfg.Telegram.DemoEnabled() {
		t.Fatal("no credentials configured, demo mode should be on")
	}
	if cfg.Cleanup.QRStaleAfter != 15*time.Minute {
		t.Fatalf("unexpected default qr_stale_after: %s", cfg.Cleanup.QRStaleAfter)
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TELEGRAM_APP_ID", "777")
	t.Setenv("TELEGRAM_DEMO_MODE", "true")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Telegram.AppID != 777 {
		t.Fatalf("unexpected telegram app id: %d", cfg.Telegram.AppID)
	}
	if !cfg.Telegram.DemoEnabled() {
		t.Fatal("TELEGRAM_DEMO_MODE=true should force demo mode")
	}
	if cfg.Redis.Addr != "redis:6380" {
		t.Fatalf("unexpected redis addr: %s", cfg.Redis.Addr)
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"APP_ENV",
		"HTTP_ADDR",
		"HTTP_READ_TIMEOUT",
		"HTTP_WRITE_TIMEOUT",
		"HTTP_IDLE_TIMEOUT",
		"LOG_LEVEL",
		"POSTGRES_DSN",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
		"S3_BUCKET",
		"S3_USE_SSL",
		"JWT_SECRET",
		"JWT_ACCESS_TTL",
		"REFRESH_TTL",
		"TELEGRAM_APP_ID",
		"TELEGRAM_APP_HASH",
		"TELEGRAM_DEMO_MODE",
		"TELEGRAM_POLL_TIMEOUT",
		"TELEGRAM_IDLE_TTL",
		"TELEGRAM_MAX_LIFETIME",
		"TELEGRAM_QR_PER_MINUTE",
		"TELEGRAM_QR_PER_HOUR",
		"BOT_TOKEN",
		"CLEANUP_INTERVAL",
		"CLEANUP_ATTEMPT_RETENTION",
		"CLEANUP_QR_STALE_AFTER",
	} {
		t.Setenv(key, "")
	}
}
