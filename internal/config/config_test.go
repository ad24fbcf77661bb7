package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"WATTVIEW_DB_PATH", "WATTVIEW_HOST",
		"WATTVIEW_PORT", "WATTVIEW_COST_PER_KWH",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("loading defaults: %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Rollup.ProgressEvery != 50 {
		t.Errorf("progress_every = %d, want 50", cfg.Rollup.ProgressEvery)
	}
	if cfg.Tariff.CostPerKWh != 0.15 {
		t.Errorf("cost_per_kwh = %v, want 0.15", cfg.Tariff.CostPerKWh)
	}
	if cfg.Cache.Size != 128 || cfg.Cache.TTL != Duration(5*time.Minute) {
		t.Errorf("cache defaults = %d/%v", cfg.Cache.Size, cfg.Cache.TTL)
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "wattview.yaml")
	body := `
database:
  path: /data/readings.db
server:
  port: 9090
rollup:
  watch: true
  debounce: 500ms
tariff:
  cost_per_kwh: 0.22
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Database.Path != "/data/readings.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want default kept", cfg.Server.Host)
	}
	if !cfg.Rollup.Watch || cfg.Rollup.Debounce != Duration(500*time.Millisecond) {
		t.Errorf("rollup = %+v", cfg.Rollup)
	}
	if cfg.Tariff.CostPerKWh != 0.22 {
		t.Errorf("cost_per_kwh = %v, want 0.22", cfg.Tariff.CostPerKWh)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "wattview.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("WATTVIEW_PORT", "7070")
	t.Setenv("WATTVIEW_DB_PATH", "/env/readings.db")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.Database.Path != "/env/readings.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
}

func TestMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad port", "server:\n  port: 0\n"},
		{"negative tariff", "tariff:\n  cost_per_kwh: -1\n"},
		{"zero cache", "cache:\n  size: 0\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "wattview.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("writing config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
