// Package watcher reports debounced file system changes under a local
// project root so the tree and context document can be refreshed.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"archon/internal/config"
	"archon/internal/logging"
)

type pendingEvent struct {
	op   fsnotify.Op
	last time.Time
}

// Watcher monitors file system changes under a directory.
type Watcher struct {
	fsWatcher  *fsnotify.Watcher
	root       string
	exclude    map[string]struct{}
	debounce   time.Duration
	maxWatches int
	onChange   ChangeHandler
	pending    map[string]pendingEvent
	mu         sync.Mutex
	done       chan struct{}
	wg         sync.WaitGroup
	running    bool
	stopOnce   sync.Once
}

// New creates a watcher for root. Directories whose name is in
// excludeDirs are never watched. A disabled config yields a watcher
// whose Start and Stop do nothing.
func New(root string, excludeDirs []string, cfg config.WatcherConfig) (*Watcher, error) {
	if !cfg.Enabled {
		return &Watcher{root: root}, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounceMs := cfg.DebounceMs
	if debounceMs <= 0 {
		debounceMs = config.DefaultDebounceMs
	}

	maxWatches := cfg.MaxWatches
	if maxWatches <= 0 {
		maxWatches = config.DefaultMaxWatches
	}

	exclude := make(map[string]struct{}, len(excludeDirs))
	for _, name := range excludeDirs {
		exclude[name] = struct{}{}
	}

	return &Watcher{
		fsWatcher:  fsWatcher,
		root:       root,
		exclude:    exclude,
		debounce:   time.Duration(debounceMs) * time.Millisecond,
		maxWatches: maxWatches,
		pending:    make(map[string]pendingEvent),
		done:       make(chan struct{}),
	}, nil
}

// SetOnChange sets the callback for settled changes.
func (w *Watcher) SetOnChange(handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = handler
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.wg.Add(2)
	go w.processEvents()
	go w.processDebounce()

	logging.Info("file watcher started", "root", w.root, "watches", w.WatchedPaths())
	return nil
}

// Stop stops watching and waits for the event loops to exit. Changes
// still inside their debounce window are dropped.
func (w *Watcher) Stop() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	if wasRunning {
		w.wg.Wait()
	}
	return err
}

func (w *Watcher) excluded(name string) bool {
	_, ok := w.exclude[name]
	return ok
}

// addDirectories adds directories to the watcher up to maxWatches.
func (w *Watcher) addDirectories() error {
	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: w.root, Err: errors.New("not a directory")}
	}

	watchCount := 0
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.excluded(d.Name()) {
			return filepath.SkipDir
		}
		if watchCount >= w.maxWatches {
			logging.Warn("watch limit reached", "root", w.root, "max_watches", w.maxWatches)
			return filepath.SkipAll
		}
		if err := w.fsWatcher.Add(path); err != nil {
			logging.Debug("failed to watch directory", "path", path, "error", err)
			return nil
		}
		watchCount++
		return nil
	})
}

// processEvents processes raw fsnotify events.
func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("file watcher error", "root", w.root, "error", err)
		}
	}
}

// handleEvent handles a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// Editor swap files and atomic-write temporaries.
	base := filepath.Base(path)
	if len(base) > 0 && (base[0] == '.' || base[0] == '#' || base[len(base)-1] == '~') {
		return
	}

	if rel, err := filepath.Rel(w.root, path); err == nil {
		for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
			if w.excluded(part) {
				return
			}
		}
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.mu.Lock()
			if len(w.fsWatcher.WatchList()) < w.maxWatches {
				if err := w.fsWatcher.Add(path); err != nil {
					logging.Debug("failed to watch new directory", "path", path, "error", err)
				}
			}
			w.mu.Unlock()
		}
	}

	w.mu.Lock()
	p := w.pending[path]
	p.op |= event.Op
	p.last = time.Now()
	w.pending[path] = p
	w.mu.Unlock()
}

// processDebounce flushes settled events every half debounce window.
func (w *Watcher) processDebounce() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending delivers paths that have been quiet for a full window.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.onChange
	if handler == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	var events []Event
	for path, p := range w.pending {
		if now.Sub(p.last) >= w.debounce {
			events = append(events, Event{Path: path, Operation: detectOperation(path, p.op), Time: p.last})
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	if len(events) == 0 {
		return
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	logging.Debug("file changes settled", "root", w.root, "count", len(events))
	handler(events)
}

// detectOperation maps the accumulated fsnotify ops of a path to one
// Operation, using the path's current existence as the tiebreaker.
func detectOperation(path string, op fsnotify.Op) Operation {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if op&fsnotify.Rename != 0 {
			return OpRename
		}
		return OpDelete
	}
	if op&fsnotify.Create != 0 {
		return OpCreate
	}
	return OpModify
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WatchedPaths returns the number of watched directories.
func (w *Watcher) WatchedPaths() int {
	if w.fsWatcher == nil {
		return 0
	}
	return len(w.fsWatcher.WatchList())
}
