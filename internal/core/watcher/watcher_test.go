package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsBadGlob(t *testing.T) {
	if _, err := NewWatcher(time.Millisecond, []string{"[abc"}, nil, func([]string) {}); err == nil {
		t.Fatal("expected error for invalid exclude pattern")
	}
}

func waitFor(t *testing.T, changed <-chan []string, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case paths := <-changed:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change of %s", want)
		}
	}
}

func TestWatcher(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, []string{"exclude_dir"}, []string{"*.bak.inp"}, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	testFile := filepath.Join(tmpDir, "net1.inp")
	if err := os.WriteFile(testFile, []byte("[JUNCTIONS]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, testFile, 2*time.Second)

	// excluded by glob and by missing include match
	for _, name := range []string{"net1.bak.inp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	deadline := time.After(500 * time.Millisecond)
	for quiet := false; !quiet; {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if p != testFile {
					t.Errorf("excluded file triggered event: %s", p)
				}
			}
		case <-deadline:
			quiet = true
		}
	}

	// New directory should be recursively watched after create.
	subdir := filepath.Join(tmpDir, "zones")
	if err := os.MkdirAll(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	subFile := filepath.Join(subdir, "zone2.inp")
	if err := os.WriteFile(subFile, []byte("[PIPES]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changedFiles, subFile, 2*time.Second)
}

func TestWatcher_RenameTriggersChange(t *testing.T) {
	tmpDir := t.TempDir()

	changedFiles := make(chan []string, 8)
	w, err := NewWatcher(100*time.Millisecond, nil, nil, func(paths []string) {
		changedFiles <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	oldPath := filepath.Join(tmpDir, "old.inp")
	newPath := filepath.Join(tmpDir, "new.inp")
	if err := os.WriteFile(oldPath, []byte("[TITLE]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(2 * time.Second)
	for {
		select {
		case paths := <-changedFiles:
			for _, p := range paths {
				if p == oldPath || p == newPath {
					return
				}
			}
		case <-timeout:
			t.Fatalf("timed out waiting for rename event, old=%s new=%s", oldPath, newPath)
		}
	}
}

func TestWatcher_IncludeFilters(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, nil, []string{"scratch_*"}, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if w.shouldExcludeFile("main.go") == false {
		t.Fatal("expected non-network files to be excluded by default")
	}
	if w.shouldExcludeFile("/tmp/net1.inp") {
		t.Fatal("expected .inp to be included by default")
	}
	if w.shouldExcludeFile("scratch_net.inp") == false {
		t.Fatal("expected exclude glob to win over include")
	}

	if err := w.SetInclude([]string{"*.net", "*.inp"}); err != nil {
		t.Fatal(err)
	}
	if w.shouldExcludeFile("plant.net") {
		t.Fatal("expected custom include to match")
	}
	if err := w.SetInclude([]string{"[abc"}); err == nil {
		t.Fatal("expected error for invalid include pattern")
	}
}
