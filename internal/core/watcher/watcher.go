// Package watcher reports changed network files under a set of roots.
package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aquanet/internal/shared/observability"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultInclude matches EPANET input files.
var DefaultInclude = []string{"*.inp"}

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	include      []glob.Glob
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	onChange     func([]string)
	callbackMu   sync.Mutex

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer

	// hashes holds the content hash last reported per file; a flush drops
	// files whose content is unchanged.
	hashes   map[string]uint64
	hashesMu sync.Mutex
}

func NewWatcher(debounce time.Duration, excludeDirs, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiledDirs, err := compile(excludeDirs)
	if err != nil {
		return nil, err
	}
	compiledFiles, err := compile(excludeFiles)
	if err != nil {
		return nil, err
	}
	include, err := compile(DefaultInclude)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		debounce:     debounce,
		include:      include,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		onChange:     onChange,
		pending:      make(map[string]time.Time),
		hashes:       make(map[string]uint64),
	}, nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// SetInclude replaces the base-name globs a file must match to be reported.
func (w *Watcher) SetInclude(patterns []string) error {
	if len(patterns) == 0 {
		patterns = DefaultInclude
	}
	include, err := compile(patterns)
	if err != nil {
		return err
	}
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.include = include
	return nil
}

func (w *Watcher) SetDebounce(debounce time.Duration) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.debounce = debounce
}

// Watch adds every non-excluded directory under paths. A path naming a file
// watches its directory.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			w.remember(path)
			path = filepath.Dir(path)
		}
		if err := w.watchRecursive(path); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path != root && w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			return w.fsWatcher.Add(path)
		}
		if !w.shouldExcludeFile(path) {
			w.remember(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		if w.contentChanged(path) {
			paths = append(paths, path)
		}
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

func hashFile(path string) (uint64, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(data), true
}

func (w *Watcher) remember(path string) {
	if h, ok := hashFile(path); ok {
		w.hashesMu.Lock()
		w.hashes[path] = h
		w.hashesMu.Unlock()
	}
}

// contentChanged updates the stored hash and reports whether it differs. A
// file that can no longer be read counts as changed once.
func (w *Watcher) contentChanged(path string) bool {
	h, ok := hashFile(path)
	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	if !ok {
		_, seen := w.hashes[path]
		delete(w.hashes, path)
		return seen
	}
	prev, seen := w.hashes[path]
	w.hashes[path] = h
	return !seen || prev != h
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	base := filepath.Base(path)

	w.pendingMu.Lock()
	include := w.include
	w.pendingMu.Unlock()

	matched := false
	for _, g := range include {
		if g.Match(base) {
			matched = true
			break
		}
	}
	if !matched {
		return true
	}

	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}
