package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aquanet/internal/data/history"
)

type recordingHistory struct {
	mu   sync.Mutex
	runs []history.Run
	fail bool
}

func (r *recordingHistory) SaveRun(_ context.Context, run history.Run) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return "", errors.New("disk full")
	}
	r.runs = append(r.runs, run)
	return run.ID, nil
}

func (r *recordingHistory) LoadRuns(network string, since time.Time) ([]history.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Run
	for _, run := range r.runs {
		if run.Network == network && !run.StartedAt.Before(since) {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *recordingHistory) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func TestHistoryWriterFlush(t *testing.T) {
	store := &recordingHistory{}
	w := newHistoryWriter(store, 2)

	for i := 0; i < 10; i++ {
		w.Enqueue(history.Run{ID: string(rune('a' + i)), Network: "n.inp"})
	}
	w.Flush()
	if got := store.count(); got != 10 {
		t.Fatalf("expected 10 runs after flush, got %d", got)
	}

	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	// runs after close are written synchronously
	w.Enqueue(history.Run{ID: "late", Network: "n.inp"})
	if got := store.count(); got != 11 {
		t.Fatalf("expected late run to be saved, got %d", got)
	}
	if err := w.Close(context.Background()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestHistoryWriterSurvivesSaveErrors(t *testing.T) {
	store := &recordingHistory{fail: true}
	w := newHistoryWriter(store, 4)
	w.Enqueue(history.Run{ID: "x", Network: "n.inp"})
	w.Flush()
	if err := w.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.count(); got != 0 {
		t.Fatalf("expected no saved runs, got %d", got)
	}
}

func TestHistoryWriterFlushDuringEnqueue(t *testing.T) {
	store := &recordingHistory{}
	w := newHistoryWriter(store, 1)
	defer w.Close(context.Background())

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				w.Enqueue(history.Run{ID: "r", Network: "n.inp"})
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				w.Flush()
			}
		}()
	}
	wg.Wait()
	w.Flush()
	if got := store.count(); got != 100 {
		t.Fatalf("expected 100 runs after flush, got %d", got)
	}
}
