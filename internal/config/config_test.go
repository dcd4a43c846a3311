package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OVERLAY_LABEL_TTL_SECONDS", "")
	t.Setenv("OVERLAY_LOCAL_BACKEND", "")

	cfg := Load()
	if cfg.LabelTTL != 5*time.Minute {
		t.Errorf("expected 5m label ttl, got %s", cfg.LabelTTL)
	}
	if cfg.RescanInterval != 30*time.Second {
		t.Errorf("expected 30s rescan interval, got %s", cfg.RescanInterval)
	}
	if cfg.RescanDebounce != time.Second {
		t.Errorf("expected 1s debounce, got %s", cfg.RescanDebounce)
	}
	if cfg.LocalBackend != "badger" {
		t.Errorf("expected badger backend, got %q", cfg.LocalBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OVERLAY_LOCAL_BACKEND", "Redis")
	t.Setenv("OVERLAY_SAMPLE_SIZE", "40")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("OVERLAY_SYNC_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.LocalBackend != "redis" {
		t.Errorf("expected redis backend, got %q", cfg.LocalBackend)
	}
	if cfg.SampleSize != 40 {
		t.Errorf("expected sample size 40, got %d", cfg.SampleSize)
	}
	if !cfg.MinioUseSSL {
		t.Error("expected MinioUseSSL to be true")
	}
	if cfg.SyncInterval != time.Minute {
		t.Errorf("invalid int should fall back to default, got %s", cfg.SyncInterval)
	}
}
