package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"aquanet/internal/core/config"
	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"
)

func copyNet1(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile("../../engine/inp/testdata/net1.inp")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testConfig(dir string) *config.Config {
	cfg := config.Default()
	cfg.WatchPaths = []string{dir}
	cfg.DB.Enabled = false
	return cfg
}

func openHistory(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScanNetworks(t *testing.T) {
	dir := t.TempDir()
	mustWrite := func(rel string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("[END]\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	mustWrite("a.inp")
	mustWrite("b.INP.bak")
	mustWrite("sub/c.inp")
	mustWrite("archive/old.inp")
	mustWrite("sub/skip_me.inp")

	files, err := ScanNetworks([]string{dir}, []string{"*.inp"}, []string{"archive"}, []string{"skip_*"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "a.inp"), filepath.Join(dir, "sub", "c.inp")}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, files)
		}
	}

	// a file root bypasses the include filter
	single := filepath.Join(dir, "b.INP.bak")
	files, err = ScanNetworks([]string{single, single}, []string{"*.inp"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != single {
		t.Fatalf("expected only %s, got %v", single, files)
	}

	if _, err := ScanNetworks([]string{dir}, []string{"[abc"}, nil, nil); err == nil {
		t.Fatal("expected invalid include pattern to fail")
	}
	if _, err := ScanNetworks([]string{filepath.Join(dir, "missing")}, []string{"*.inp"}, nil, nil); err == nil {
		t.Fatal("expected missing root to fail")
	}
}

func TestSimulate(t *testing.T) {
	dir := t.TempDir()
	path := copyNet1(t, dir, "net1.inp")
	outDir := filepath.Join(dir, "results")

	cfg := testConfig(dir)
	cfg.Simulation.SaveResults = true
	cfg.Simulation.Nodes = []string{"11", "23"}

	a, err := New(cfg, nil, outDir)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res, err := a.Simulate(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed() {
		t.Fatalf("unexpected failure: %s", res.Err)
	}
	if res.Periods != 25 {
		t.Errorf("expected 25 reporting periods, got %d", res.Periods)
	}
	if res.Nodes != 9 || res.Links != 10 {
		t.Errorf("expected 9 nodes and 10 links, got %d and %d", res.Nodes, res.Links)
	}
	if res.MinPressure <= 0 || res.MinPressure >= res.MaxPressure {
		t.Errorf("unexpected pressure range [%f, %f]", res.MinPressure, res.MaxPressure)
	}
	if res.PeakDemand <= 0 {
		t.Errorf("expected positive peak demand, got %f", res.PeakDemand)
	}
	if len(res.Extremes) != 2 || res.Extremes[0].NodeID != "11" || res.Extremes[1].NodeID != "23" {
		t.Fatalf("unexpected extremes %+v", res.Extremes)
	}
	for _, e := range res.Extremes {
		if e.MinPressure < res.MinPressure || e.MaxPressure > res.MaxPressure {
			t.Errorf("node %s range [%f, %f] outside network range", e.NodeID, e.MinPressure, e.MaxPressure)
		}
	}

	saved := resultsPath(outDir, path, res.RunID)
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("expected saved results at %s: %v", saved, err)
	}
	if !strings.HasPrefix(filepath.Base(saved), "net1-") {
		t.Errorf("unexpected results name %s", saved)
	}

	update := a.CurrentUpdate()
	if len(update.Networks) != 1 || update.Networks[0].RunID != res.RunID {
		t.Fatalf("expected the run to be recorded, got %+v", update.Networks)
	}
}

func TestSimulateRecordsFailure(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.inp")
	if err := os.WriteFile(bad, []byte("[JUNCTIONS]\n 1 10\n[PIPES]\n 1 1 99 100 12 100\n[END]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := openHistory(t)
	a, err := New(testConfig(dir), history.NewAdapter(store, 0), "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	res, err := a.Simulate(context.Background(), bad)
	if err == nil {
		t.Fatal("expected simulation of a broken network to fail")
	}
	if !res.Failed() {
		t.Fatal("expected result to be marked failed")
	}
	if res.Warning <= 100 {
		t.Errorf("expected an error code, got %d", res.Warning)
	}

	a.writer.Flush()
	runs, err := store.LoadRuns(bad, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != history.StatusFailed || runs[0].Error == "" {
		t.Fatalf("expected one failed run, got %+v", runs)
	}
}

func TestHandleChangesThrottles(t *testing.T) {
	dir := t.TempDir()
	path := copyNet1(t, dir, "net1.inp")

	cfg := testConfig(dir)
	cfg.Watch.RerunInterval = time.Hour
	cfg.Watch.RerunBurst = 1

	a, err := New(cfg, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	var updates []ports.WatchUpdate
	a.SetUpdateHandler(func(u ports.WatchUpdate) { updates = append(updates, u) })

	a.HandleChanges([]string{path})
	a.HandleChanges([]string{path})

	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	last := updates[1]
	if last.Reruns != 1 || last.Throttled != 1 {
		t.Fatalf("expected 1 rerun and 1 throttled, got %d and %d", last.Reruns, last.Throttled)
	}
	if len(last.Networks) != 1 {
		t.Fatalf("expected 1 network, got %d", len(last.Networks))
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	a.HandleChanges([]string{path})
	if got := a.CurrentUpdate().Networks; len(got) != 0 {
		t.Fatalf("expected removed network to be forgotten, got %+v", got)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := New(nil, nil, ""); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestHealthCheck(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.DB.Enabled = true

	a, err := New(cfg, nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	status := NewHealthService(a).Check(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("expected degraded with history missing, got %s", status.Status)
	}
	if status.Components["history"] == "" || status.Components["heap_mb"] == "" {
		t.Fatalf("missing components: %+v", status.Components)
	}

	cfg.DB.Enabled = false
	status = NewHealthService(a).Check(context.Background())
	if status.Status != "up" || status.Components["history"] != "disabled" {
		t.Fatalf("expected up with history disabled, got %+v", status)
	}

	a.record(ports.NetworkResult{Path: "x.inp", Err: "boom"})
	status = NewHealthService(a).Check(context.Background())
	if status.Status != "degraded" {
		t.Fatalf("expected degraded with a failing network, got %s", status.Status)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	a, err := New(testConfig(dir), nil, "")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	next := testConfig(dir)
	next.Alerts.Beep = true
	next.Simulation.Timeout = time.Minute
	a.Reload(next)
	if a.config() != next {
		t.Fatal("expected reloaded config to be active")
	}
	a.Reload(nil)
	if a.config() != next {
		t.Fatal("nil reload should keep the current config")
	}
}
