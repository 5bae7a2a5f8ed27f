package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestAdapter_SaveAndPrune(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer func() { _ = store.Close() }()

	adapter := NewAdapter(store, 2)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i := range 4 {
		run := Run{Network: "net1.inp", Kind: "full", StartedAt: base.Add(time.Duration(i) * time.Minute), MinPressure: float64(i)}
		if _, err := adapter.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("save run %d: %v", i, err)
		}
	}

	rows, err := adapter.LoadRuns("net1.inp", time.Time{})
	if err != nil {
		t.Fatalf("load runs: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 runs after pruning, got %d", len(rows))
	}
	if rows[0].MinPressure != 2 || rows[1].MinPressure != 3 {
		t.Fatalf("expected newest runs kept, got %+v", rows)
	}
}
