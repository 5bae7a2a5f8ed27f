// Package app runs network files through the toolkit for one-shot and watch
// modes and records each run.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"aquanet/internal/core/config"
	"aquanet/internal/core/ports"
	"aquanet/internal/core/watcher"
	"aquanet/internal/shared/util"
)

type App struct {
	Config    *config.Config
	OutputDir string
	cfgMu     sync.RWMutex

	history  ports.RunHistory
	writer   *historyWriter
	limiters *util.LimiterRegistry

	resultsMu sync.RWMutex
	results   map[string]ports.NetworkResult
	reruns    int
	throttled int

	updateMu sync.RWMutex
	onUpdate func(ports.WatchUpdate)

	activeWatcher *watcher.Watcher
	closeOnce     sync.Once
}

// New builds an App. runs may be nil when history is disabled; outputDir is
// where saved results files go.
func New(cfg *config.Config, runs ports.RunHistory, outputDir string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	interval := cfg.Watch.RerunInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	burst := max(cfg.Watch.RerunBurst, 1)

	a := &App{
		Config:    cfg,
		OutputDir: outputDir,
		history:   runs,
		limiters:  util.NewLimiterRegistry(1/interval.Seconds(), burst, 10*interval),
		results:   make(map[string]ports.NetworkResult),
	}
	if runs != nil {
		a.writer = newHistoryWriter(runs, 64)
	}
	return a, nil
}

// Reload swaps in a new configuration for subsequent runs. Watch paths and
// rerun limits only take effect on restart.
func (a *App) Reload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	if !slices.Equal(cfg.WatchPaths, a.Config.WatchPaths) {
		slog.Warn("watch paths changed; restart to apply", "old", a.Config.WatchPaths, "new", cfg.WatchPaths)
	}
	a.Config = cfg
	if a.activeWatcher != nil {
		a.activeWatcher.SetDebounce(cfg.Watch.Debounce)
		if err := a.activeWatcher.SetInclude(cfg.Watch.Include); err != nil {
			slog.Warn("keeping previous include patterns", "error", err)
		}
	}
}

func (a *App) config() *config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.Config
}

func (a *App) SetUpdateHandler(handler func(ports.WatchUpdate)) {
	a.updateMu.Lock()
	defer a.updateMu.Unlock()
	a.onUpdate = handler
}

// CurrentUpdate returns the latest result of every known network, sorted by
// path.
func (a *App) CurrentUpdate() ports.WatchUpdate {
	a.resultsMu.RLock()
	defer a.resultsMu.RUnlock()

	update := ports.WatchUpdate{Reruns: a.reruns, Throttled: a.throttled}
	for _, path := range util.SortedStringKeys(a.results) {
		update.Networks = append(update.Networks, a.results[path])
	}
	return update
}

func (a *App) emitUpdate() {
	a.updateMu.RLock()
	handler := a.onUpdate
	a.updateMu.RUnlock()
	if handler != nil {
		handler(a.CurrentUpdate())
	}
}

func (a *App) record(res ports.NetworkResult) {
	a.resultsMu.Lock()
	a.results[res.Path] = res
	a.resultsMu.Unlock()
}

func (a *App) forget(path string) {
	a.resultsMu.Lock()
	delete(a.results, path)
	a.resultsMu.Unlock()
}

// Close stops the watcher and flushes pending history writes.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.activeWatcher != nil {
			err = a.activeWatcher.Close()
		}
		a.limiters.Close()
		if a.writer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if flushErr := a.writer.Close(ctx); flushErr != nil {
				slog.Warn("history writer did not drain", "error", flushErr)
			}
		}
	})
	return err
}
