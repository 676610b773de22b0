package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"harness/pkg/logging"
)

const (
	// DefaultDebounceInterval is the quiet period after the last change
	// before OnChange runs.
	DefaultDebounceInterval = 500 * time.Millisecond

	// DefaultPollInterval is used when fsnotify is unavailable.
	DefaultPollInterval = 2 * time.Second
)

// Config configures a DirWatcher.
type Config struct {
	// Dir is watched recursively.
	Dir string

	Debounce     time.Duration
	PollInterval time.Duration

	// OnChange runs once per burst of changes, on its own goroutine.
	OnChange func()
}

// DirWatcher reports changes below a directory. It uses fsnotify and falls
// back to polling modification times where fsnotify cannot be used.
type DirWatcher struct {
	mu sync.Mutex

	config    Config
	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
	running   bool

	// snapshot holds modification times for polling.
	snapshot map[string]time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// NewDirWatcher creates a stopped watcher.
func NewDirWatcher(config Config) *DirWatcher {
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounceInterval
	}
	if config.PollInterval == 0 {
		config.PollInterval = DefaultPollInterval
	}
	return &DirWatcher{config: config}
}

// Start begins watching. Starting a running watcher is a no-op.
func (w *DirWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if _, err := os.Stat(w.config.Dir); err != nil {
		return err
	}

	w.stopCh = make(chan struct{})
	w.running = true

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Warn("Watch", "fsnotify not available, falling back to polling: %v", err)
		go w.poll(w.stopCh)
		return nil
	}
	if err := addRecursive(watcher, w.config.Dir); err != nil {
		logging.Warn("Watch", "Failed to watch %s, falling back to polling: %v", w.config.Dir, err)
		watcher.Close()
		go w.poll(w.stopCh)
		return nil
	}
	w.fsWatcher = watcher

	go w.processEvents(w.stopCh, watcher.Events, watcher.Errors)

	logging.Info("Watch", "Watching %s for changes", w.config.Dir)
	return nil
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
}

func (w *DirWatcher) processEvents(stopCh <-chan struct{}, eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			logging.Error("Watch", err, "fsnotify error")
		}
	}
}

func (w *DirWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.mu.Lock()
			if w.fsWatcher != nil {
				if err := addRecursive(w.fsWatcher, event.Name); err != nil {
					logging.Warn("Watch", "Failed to watch new directory %s: %v", event.Name, err)
				}
			}
			w.mu.Unlock()
		}
	}
	logging.Debug("Watch", "Changed: %s (%s)", event.Name, event.Op)
	w.triggerDebounced()
}

func (w *DirWatcher) triggerDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		running := w.running
		callback := w.config.OnChange
		w.mu.Unlock()

		if running && callback != nil {
			callback()
		}
	})
}

func (w *DirWatcher) poll(stopCh <-chan struct{}) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.snapshot = scan(w.config.Dir)
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			current := scan(w.config.Dir)
			if changed(w.snapshot, current) {
				logging.Debug("Watch", "Changes below %s detected via polling", w.config.Dir)
				w.triggerDebounced()
			}
			w.snapshot = current
		}
	}
}

// scan records the modification time of every file below root.
func scan(root string) map[string]time.Time {
	out := map[string]time.Time{}
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			out[p] = info.ModTime()
		}
		return nil
	})
	return out
}

func changed(before, after map[string]time.Time) bool {
	if len(before) != len(after) {
		return true
	}
	for p, t := range after {
		if prev, ok := before[p]; !ok || !prev.Equal(t) {
			return true
		}
	}
	return false
}

// Stop stops the watcher and cancels a pending callback.
func (w *DirWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.fsWatcher != nil {
		if err := w.fsWatcher.Close(); err != nil {
			logging.Warn("Watch", "Error closing fsnotify watcher: %v", err)
		}
		w.fsWatcher = nil
	}
	logging.Info("Watch", "Stopped watching %s", w.config.Dir)
	return nil
}

// IsRunning reports whether the watcher is active.
func (w *DirWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
