package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aquanet.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version = 1
watch_paths = ["./networks"]

[exclude]
dirs = [".git"]
files = ["*.bak.inp"]

[watch]
debounce = "1s"
include = ["*.inp", "net?.inp"]
rerun_burst = 5

[simulation]
quality = true
save_results = true
timeout = "30s"
nodes = ["10", "22"]

[db]
path = "runs.db"
keep_runs = 50

[alerts]
beep = true
terminal = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "./networks" {
		t.Errorf("Unexpected WatchPaths: %v", cfg.WatchPaths)
	}
	if cfg.Watch.Debounce != time.Second {
		t.Errorf("Expected debounce 1s, got %v", cfg.Watch.Debounce)
	}
	if cfg.Watch.RerunBurst != 5 {
		t.Errorf("Expected rerun burst 5, got %d", cfg.Watch.RerunBurst)
	}
	if !cfg.Simulation.Quality || !cfg.Simulation.SaveResults {
		t.Errorf("Expected quality and save_results enabled, got %+v", cfg.Simulation)
	}
	if cfg.Simulation.Timeout != 30*time.Second {
		t.Errorf("Expected timeout 30s, got %v", cfg.Simulation.Timeout)
	}
	if cfg.DB.Path != "runs.db" || cfg.DB.KeepRuns != 50 {
		t.Errorf("Unexpected db config: %+v", cfg.DB)
	}
	if !cfg.DB.Enabled {
		t.Error("Expected db enabled by default")
	}
	if !cfg.Alerts.Beep || !cfg.Alerts.Terminal {
		t.Error("Expected alerts enabled")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `watch_paths = ["."]`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Expected version 1, got %d", cfg.Version)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Expected default debounce 500ms, got %v", cfg.Watch.Debounce)
	}
	if len(cfg.Watch.Include) != 1 || cfg.Watch.Include[0] != "*.inp" {
		t.Errorf("Unexpected default include: %v", cfg.Watch.Include)
	}
	if cfg.DB.Driver != "sqlite" || cfg.DB.Path != "history.db" {
		t.Errorf("Unexpected default db: %+v", cfg.DB)
	}
	if cfg.Simulation.Timeout != 5*time.Minute {
		t.Errorf("Expected default timeout 5m, got %v", cfg.Simulation.Timeout)
	}
	if cfg.Observability.Port != 9464 {
		t.Errorf("Expected default port 9464, got %d", cfg.Observability.Port)
	}
}

func TestLoadError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected error for missing file")
	}
	if _, err := Load(writeConfig(t, `watch_paths = [`)); err == nil {
		t.Error("Expected error for malformed toml")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "grammars_path = \"./grammars\"\n"))
	if err == nil || !strings.Contains(err.Error(), "grammars_path") {
		t.Fatalf("Expected unknown key error, got %v", err)
	}
}

func TestLoadRejectsUnsupportedVersion(t *testing.T) {
	_, err := Load(writeConfig(t, "version = 2\n"))
	if err == nil || !strings.Contains(err.Error(), "Version") {
		t.Fatalf("Expected version error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AQUANET_SIMULATION_QUALITY", "true")
	t.Setenv("AQUANET_OBSERVABILITY_PORT", "9999")
	t.Setenv("AQUANET_WATCH_DEBOUNCE", "250ms")
	t.Setenv("AQUANET_DB_ENABLED", "false")
	t.Setenv("AQUANET_SCENARIOS_WORKERS", "not-a-number")

	cfg, err := Load(writeConfig(t, "[scenarios]\nworkers = 4\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Simulation.Quality {
		t.Error("Expected quality override")
	}
	if cfg.Observability.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Observability.Port)
	}
	if cfg.Watch.Debounce != 250*time.Millisecond {
		t.Errorf("Expected debounce 250ms, got %v", cfg.Watch.Debounce)
	}
	if cfg.DB.Enabled {
		t.Error("Expected db disabled")
	}
	if cfg.Scenarios.Workers != 4 {
		t.Errorf("Unparseable override must be ignored, got %d", cfg.Scenarios.Workers)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("Default config invalid: %v", errs)
	}
}
