package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"aquanet/internal/core/ports"
	"aquanet/internal/core/watcher"
	"aquanet/internal/shared/observability"
)

func (a *App) StartWatcher() error {
	cfg := a.config()
	w, err := watcher.NewWatcher(
		cfg.Watch.Debounce,
		cfg.Exclude.Dirs,
		cfg.Exclude.Files,
		a.HandleChanges,
	)
	if err != nil {
		return err
	}
	if err := w.SetInclude(cfg.Watch.Include); err != nil {
		_ = w.Close()
		return err
	}
	a.cfgMu.Lock()
	a.activeWatcher = w
	a.cfgMu.Unlock()
	return w.Watch(cfg.WatchPaths)
}

// HandleChanges reruns every changed network that its rerun limiter allows
// and drops removed ones, then emits one update.
func (a *App) HandleChanges(paths []string) {
	slog.Info("detected changes", "count", len(paths))

	for _, path := range paths {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			a.forget(path)
			continue
		}
		if !a.limiters.Get(path).Allow(1) {
			observability.RerunsThrottledTotal.Inc()
			a.resultsMu.Lock()
			a.throttled++
			a.resultsMu.Unlock()
			slog.Info("rerun throttled", "network", path)
			continue
		}

		res, _ := a.Simulate(context.Background(), path)
		a.resultsMu.Lock()
		a.reruns++
		a.resultsMu.Unlock()
		a.alert(res)
	}

	a.emitUpdate()
}

func (a *App) alert(res ports.NetworkResult) {
	if !res.Failed() && !res.Warning.IsWarning() {
		return
	}
	alerts := a.config().Alerts
	if alerts.Beep {
		fmt.Print("\a")
	}
	if alerts.Terminal {
		reason := res.Err
		if reason == "" {
			reason = res.Warning.Message()
		}
		fmt.Fprintf(os.Stderr, "aquanet: %s: %s\n", filepath.Base(res.Path), reason)
	}
}

type watchService struct {
	app *App
}

var _ ports.WatchService = (*watchService)(nil)

func (s *watchService) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.app == nil {
		return fmt.Errorf("app is required")
	}
	return s.app.StartWatcher()
}

func (s *watchService) CurrentUpdate(ctx context.Context) (ports.WatchUpdate, error) {
	if err := ctx.Err(); err != nil {
		return ports.WatchUpdate{}, err
	}
	if s.app == nil {
		return ports.WatchUpdate{}, fmt.Errorf("app is required")
	}
	return s.app.CurrentUpdate(), nil
}

func (s *watchService) Subscribe(ctx context.Context, handler func(ports.WatchUpdate)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.app == nil {
		return fmt.Errorf("app is required")
	}
	if handler == nil {
		return fmt.Errorf("handler is required")
	}
	s.app.SetUpdateHandler(func(update ports.WatchUpdate) {
		if ctx.Err() != nil {
			return
		}
		handler(update)
	})
	return nil
}
