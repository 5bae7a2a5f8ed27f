package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a configuration file when it changes on disk.
type Watcher struct {
	path     string
	callback func(*Config)
	stop     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(path string, callback func(*Config)) *Watcher {
	return &Watcher{
		path:     path,
		callback: callback,
		stop:     make(chan struct{}),
	}
}

// Start watches the file's directory so atomic replace-on-save is seen.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		slog.Debug("config watcher started", "path", w.path)

		var timer *time.Timer
		const debounce = 100 * time.Millisecond
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(debounce, w.reload)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "error", err)

			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (w *Watcher) Stop() {
	w.once.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("config reload failed, keeping previous", "path", w.path, "error", err)
		return
	}
	slog.Info("config reloaded", "path", w.path)
	if w.callback != nil {
		w.callback(cfg)
	}
}
