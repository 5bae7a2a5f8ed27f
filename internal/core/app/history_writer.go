package app

import (
	"context"
	"log/slog"
	"sync"

	"aquanet/internal/core/ports"
	"aquanet/internal/data/history"
)

// historyWriter persists runs off the simulation path. When the buffer is
// full Enqueue saves synchronously rather than dropping the run.
type historyWriter struct {
	store ports.RunHistory
	queue chan history.Run
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	// pending counts runs not yet written; idle is signalled at zero.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int
}

func newHistoryWriter(store ports.RunHistory, capacity int) *historyWriter {
	w := &historyWriter{
		store: store,
		queue: make(chan history.Run, capacity),
		done:  make(chan struct{}),
	}
	w.idle = sync.NewCond(&w.pendingMu)
	go w.run()
	return w
}

func (w *historyWriter) Enqueue(run history.Run) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	w.track(1)
	if w.closed {
		w.save(run)
		return
	}
	select {
	case w.queue <- run:
	default:
		w.save(run)
	}
}

// Flush waits until every enqueued run has been written.
func (w *historyWriter) Flush() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	for w.pending > 0 {
		w.idle.Wait()
	}
}

func (w *historyWriter) track(delta int) {
	w.pendingMu.Lock()
	w.pending += delta
	if w.pending == 0 {
		w.idle.Broadcast()
	}
	w.pendingMu.Unlock()
}

func (w *historyWriter) run() {
	defer close(w.done)
	for run := range w.queue {
		w.save(run)
	}
}

func (w *historyWriter) save(run history.Run) {
	defer w.track(-1)
	if _, err := w.store.SaveRun(context.Background(), run); err != nil {
		slog.Warn("failed to save run history", "run_id", run.ID, "network", run.Network, "error", err)
	}
}

// Close stops accepting runs and waits for queued ones to be written.
func (w *historyWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
