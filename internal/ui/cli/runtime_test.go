package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	coreapp "aquanet/internal/core/app"
	"aquanet/internal/core/config"
	"aquanet/internal/data/history"
)

func copyNet1(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile("../../engine/inp/testdata/net1.inp")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "net1.inp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestApplyModeOptions_RejectsCombinedModes(t *testing.T) {
	opts := &cliOptions{save: "out.inp", scenarios: "s.yaml", args: []string{"net.inp"}}
	err := applyModeOptions(opts, config.Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "cannot be combined") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptions_SaveRequiresNetworkArg(t *testing.T) {
	opts := &cliOptions{save: "out.inp"}
	err := applyModeOptions(opts, config.Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "requires one network argument") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptions_UIRejectsOnce(t *testing.T) {
	if err := applyModeOptions(&cliOptions{ui: true, once: true}, config.Default()); err == nil {
		t.Fatal("expected error")
	}
}

func TestApplyModeOptions_OverridesWatchPathAndQuality(t *testing.T) {
	opts := &cliOptions{args: []string{"./override.inp"}, quality: true}
	cfg := &config.Config{WatchPaths: []string{"./original"}}

	if err := applyModeOptions(opts, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.WatchPaths) != 1 || cfg.WatchPaths[0] != "./override.inp" {
		t.Fatalf("unexpected watch paths: %v", cfg.WatchPaths)
	}
	if !cfg.Simulation.Quality {
		t.Fatal("expected --quality to enable quality")
	}
}

func TestApplyModeOptions_HistoryJSONRequiresHistoryFlag(t *testing.T) {
	opts := &cliOptions{historyJSON: "trend.json"}
	err := applyModeOptions(opts, config.Default())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "requires --history") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyModeOptions_HistoryValidatesSince(t *testing.T) {
	opts := &cliOptions{history: true, since: "yesterday", historyWindow: "24h"}
	if err := applyModeOptions(opts, config.Default()); err == nil {
		t.Fatal("expected invalid --since to be rejected")
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantZero  bool
		wantError bool
	}{
		{name: "empty", input: "", wantZero: true},
		{name: "date", input: "2026-02-13"},
		{name: "rfc3339", input: "2026-02-13T15:00:00Z"},
		{name: "invalid", input: "13/02/2026", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSince(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantZero && !got.Equal(time.Time{}) {
				t.Fatalf("expected zero time, got %v", got)
			}
			if !tt.wantZero && got.IsZero() {
				t.Fatal("expected non-zero parsed time")
			}
		})
	}
}

func TestParseHistoryWindow(t *testing.T) {
	if d, err := parseHistoryWindow(""); err != nil || d != 24*time.Hour {
		t.Fatalf("expected 24h default, got %v %v", d, err)
	}
	if _, err := parseHistoryWindow("24h"); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if _, err := parseHistoryWindow("0h"); err == nil {
		t.Fatal("expected error for non-positive window")
	}
	if _, err := parseHistoryWindow("soon"); err == nil {
		t.Fatal("expected error for malformed window")
	}
}

func TestRunHistoryMode_SQLiteIntegration(t *testing.T) {
	tmpDir := t.TempDir()
	path := copyNet1(t, tmpDir)

	cfg := config.Default()
	cfg.Paths.ProjectRoot = tmpDir
	cfg.WatchPaths = []string{tmpDir}
	paths, err := config.ResolvePaths(cfg, tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	store, err := openHistoryStore(cfg, paths)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	_, svc, err := initializeSimulation(cfg, history.NewAdapter(store, 0), paths.OutputDir, coreSimulationFactory{})
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()

	update, err := svc.SimulateAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	jsonPath := filepath.Join(tmpDir, "out", "trend.json")
	window, err := runHistoryMode(context.Background(),
		cliOptions{history: true, historyWindow: "12h", historyJSON: jsonPath}, svc, update)
	if err != nil {
		t.Fatalf("run history mode: %v", err)
	}
	if window != 12*time.Hour {
		t.Fatalf("unexpected window %v", window)
	}

	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var reports []history.TrendReport
	if err := json.Unmarshal(raw, &reports); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].Network != path || reports[0].RunCount != 1 {
		t.Fatalf("unexpected reports %+v", reports)
	}
}

func TestLoadConfig_DefaultDiscoveryOrder(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, "data", "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(tmpDir, "data", "config", "aquanet.toml")
	if err := os.WriteFile(cfgPath, []byte("[watch]\nrerun_burst = 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "aquanet.toml"), []byte("[watch]\nrerun_burst = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, got, err := loadConfig(defaultConfigPath, tmpDir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if got != cfgPath || cfg.Watch.RerunBurst != 7 {
		t.Fatalf("expected %s to win, got %s (burst %d)", cfgPath, got, cfg.Watch.RerunBurst)
	}
}

func TestLoadConfig_FallsBackToDefaults(t *testing.T) {
	cfg, path, err := loadConfig(defaultConfigPath, t.TempDir())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if path != "" {
		t.Fatalf("expected no config path, got %q", path)
	}
	if cfg.Watch.RerunBurst != 3 {
		t.Fatalf("expected defaults, got %+v", cfg.Watch)
	}
}

func TestLoadConfig_CustomPathNoFallback(t *testing.T) {
	tmpDir := t.TempDir()
	custom := filepath.Join(tmpDir, "custom.toml")

	_, _, err := loadConfig(custom, tmpDir)
	if err == nil {
		t.Fatal("expected missing custom config error")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestOpenHistoryStore_UsesConfiguredDBPath(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{
		Paths: config.Paths{
			ProjectRoot: tmpDir,
			DatabaseDir: filepath.Join(tmpDir, "db"),
		},
		DB: config.Database{
			Enabled:     true,
			Path:        "nested/history.db",
			BusyTimeout: time.Second,
		},
	}
	paths, err := config.ResolvePaths(cfg, tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	store, err := openHistoryStore(cfg, paths)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if store.Path() != filepath.Join(tmpDir, "db", "nested", "history.db") {
		t.Fatalf("unexpected history path: %q", store.Path())
	}
}

func TestOpenHistoryStore_DBDisabled(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &config.Config{Paths: config.Paths{ProjectRoot: tmpDir}, DB: config.Database{Enabled: false}}
	paths, err := config.ResolvePaths(cfg, tmpDir)
	if err != nil {
		t.Fatal(err)
	}

	store, err := openHistoryStore(cfg, paths)
	if err != nil {
		t.Fatal(err)
	}
	if store != nil {
		t.Fatal("expected nil store when db disabled")
	}
}

func TestRunSave(t *testing.T) {
	tmpDir := t.TempDir()
	path := copyNet1(t, tmpDir)
	out := filepath.Join(tmpDir, "copy.inp")

	if err := runSave(path, out); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[JUNCTIONS]") {
		t.Fatal("expected junctions section in saved file")
	}
}

func TestPrintSummaryCountsFailures(t *testing.T) {
	tmpDir := t.TempDir()
	path := copyNet1(t, tmpDir)
	cfg := config.Default()
	cfg.DB.Enabled = false
	cfg.WatchPaths = []string{tmpDir}

	app, err := coreapp.New(cfg, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer app.Close()
	if _, err := app.Simulate(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	if _, err := app.Simulate(context.Background(), filepath.Join(tmpDir, "absent.inp")); err == nil {
		t.Fatal("expected missing network to fail")
	}

	var buf bytes.Buffer
	if failed := printSummary(&buf, app.CurrentUpdate()); failed != 1 {
		t.Fatalf("expected 1 failure, got %d", failed)
	}
	out := buf.String()
	if !strings.Contains(out, "net1.inp") || !strings.Contains(out, "absent.inp") {
		t.Fatalf("summary missing networks:\n%s", out)
	}
	if !strings.Contains(out, "2 networks, 1 failed") {
		t.Fatalf("summary missing totals:\n%s", out)
	}
}

func TestPrintDetail(t *testing.T) {
	path := copyNet1(t, t.TempDir())
	var buf bytes.Buffer
	if err := printDetail(context.Background(), &buf, path, false, []string{"9"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"node_pressure", "link_flow", "link 9"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if err := printDetail(context.Background(), &buf, path, false, []string{"nope"}); err == nil {
		t.Fatal("expected unknown link to fail")
	}
}

func TestResolveLogPath_UsesXDGStateHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	if got := resolveLogPath(); got != filepath.Join(dir, "aquanet", "aquanet.log") {
		t.Fatalf("unexpected log path %q", got)
	}
}

func TestRunVersion(t *testing.T) {
	if code := Run([]string{"-version"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if code := Run([]string{"-no-such-flag"}); code != 2 {
		t.Fatalf("expected exit 2 for bad flag, got %d", code)
	}
}
