package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSortedStringKeys(t *testing.T) {
	t.Parallel()

	m := map[string]int{"net3.inp": 3, "net1.inp": 1, "net2.inp": 2}
	keys := SortedStringKeys(m)
	expected := []string{"net1.inp", "net2.inp", "net3.inp"}
	if len(keys) != len(expected) {
		t.Fatalf("expected %d keys, got %d", len(expected), len(keys))
	}
	for i, key := range expected {
		if keys[i] != key {
			t.Fatalf("expected %q at %d, got %q", key, i, keys[i])
		}
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "trend.json")
	content := []byte(`{"run_count":1}`)

	if err := WriteFileWithDirs(path, content, 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("expected %q, got %q", string(content), string(got))
	}
}

func TestGetHeapAllocMB(t *testing.T) {
	buf := make([]byte, 8<<20)
	buf[len(buf)-1] = 1
	if GetHeapAllocMB() == 0 {
		t.Fatal("expected non-zero heap allocation while holding 8MB")
	}
	_ = buf[len(buf)-1]
}
