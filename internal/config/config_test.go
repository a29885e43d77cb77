package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"LISTEN_ADDR", "PORT", "WS_PATH", "ALLOWED_ORIGINS", "REDIS_URL", "DATABASE_URL", "BOT_MOVE_DELAY_MS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil { t.Fatalf("Load: %v", err) }
	if cfg.ListenAddr != ":3000" || cfg.WSPath != "/ws" {
		t.Fatalf("unexpected defaults: addr=%q path=%q", cfg.ListenAddr, cfg.WSPath)
	}
	if cfg.BotMoveDelay != 300*time.Millisecond {
		t.Fatalf("unexpected bot delay: %v", cfg.BotMoveDelay)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("expected no origin restriction, got %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("PORT", "8080")
	t.Setenv("WS_PATH", "socket")
	t.Setenv("ALLOWED_ORIGINS", "example.com, *.example.org ,")
	t.Setenv("BOT_MOVE_DELAY_MS", "0")
	t.Setenv("SESSION_MIRROR_TTL_SEC", "60")
	t.Setenv("WS_SEND_BUFFER", "nope")

	cfg, err := Load()
	if err != nil { t.Fatalf("Load: %v", err) }
	if cfg.ListenAddr != ":8080" { t.Fatalf("addr = %q", cfg.ListenAddr) }
	if cfg.WSPath != "/socket" { t.Fatalf("path = %q", cfg.WSPath) }
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "*.example.org" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if cfg.BotMoveDelay != 0 { t.Fatalf("bot delay = %v", cfg.BotMoveDelay) }
	if cfg.SessionMirrorTTL != time.Minute { t.Fatalf("mirror ttl = %v", cfg.SessionMirrorTTL) }
	if cfg.WSSendBuffer != 64 { t.Fatalf("invalid buffer should keep default, got %d", cfg.WSSendBuffer) }
}

func TestLoadRejectsRootWSPath(t *testing.T) {
	t.Setenv("WS_PATH", "/")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for root ws path")
	}
}
