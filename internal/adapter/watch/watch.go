// Package watch reloads elevation sources when their files change on disk.
package watch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce collapses bursts of events (a tile directory being synced,
// an editor replacing a file) into a single reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher invokes a callback after watched files or directories change.
// Directories are watched recursively; files are watched through their
// parent directory so atomic replacements are seen.
type Watcher struct {
	logger   *zap.Logger
	debounce time.Duration
	onChange func()

	mu    sync.Mutex
	w     *fsnotify.Watcher
	dirs  map[string]struct{}
	files map[string]struct{}
	timer *time.Timer
	done  chan struct{}
}

// New starts a watcher. onChange runs on its own goroutine once events have
// been quiet for debounce.
func New(logger *zap.Logger, debounce time.Duration, onChange func()) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	wt := &Watcher{
		logger:   logger,
		debounce: debounce,
		onChange: onChange,
		w:        fw,
		dirs:     make(map[string]struct{}),
		files:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
	go wt.loop()
	return wt, nil
}

// AddDir watches root and every directory below it.
func (wt *Watcher) AddDir(root string) error {
	root = filepath.Clean(root)
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if _, ok := wt.dirs[root]; ok {
		return nil
	}
	if err := wt.addTreeLocked(root); err != nil {
		return err
	}
	wt.dirs[root] = struct{}{}
	return nil
}

// AddFile watches a single file.
func (wt *Watcher) AddFile(path string) error {
	path = filepath.Clean(path)
	wt.mu.Lock()
	defer wt.mu.Unlock()
	if _, ok := wt.files[path]; ok {
		return nil
	}
	if err := wt.w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %q: %w", path, err)
	}
	wt.files[path] = struct{}{}
	return nil
}

// Reset drops every watch. Used after the sources are cleared.
func (wt *Watcher) Reset() {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	for _, name := range wt.w.WatchList() {
		_ = wt.w.Remove(name)
	}
	wt.dirs = make(map[string]struct{})
	wt.files = make(map[string]struct{})
	if wt.timer != nil {
		wt.timer.Stop()
		wt.timer = nil
	}
}

// Close stops the watcher and waits for the event loop to exit.
func (wt *Watcher) Close() error {
	wt.mu.Lock()
	if wt.timer != nil {
		wt.timer.Stop()
		wt.timer = nil
	}
	wt.mu.Unlock()
	err := wt.w.Close()
	<-wt.done
	return err
}

func (wt *Watcher) addTreeLocked(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := wt.w.Add(path); err != nil {
			return fmt.Errorf("watch %q: %w", path, err)
		}
		return nil
	})
}

func (wt *Watcher) loop() {
	defer close(wt.done)
	for {
		select {
		case ev, ok := <-wt.w.Events:
			if !ok {
				return
			}
			wt.handle(ev)
		case err, ok := <-wt.w.Errors:
			if !ok {
				return
			}
			wt.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

func (wt *Watcher) handle(ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}
	name := filepath.Clean(ev.Name)

	wt.mu.Lock()
	defer wt.mu.Unlock()

	if !wt.relevantLocked(name) {
		return
	}
	// New subdirectories of a watched tree join the watch.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(name); err == nil && info.IsDir() {
			if err := wt.addTreeLocked(name); err != nil {
				wt.logger.Warn("failed to watch new directory", zap.String("path", name), zap.Error(err))
			}
		}
	}

	wt.logger.Debug("source change detected", zap.String("path", name), zap.String("op", ev.Op.String()))
	if wt.timer != nil {
		wt.timer.Stop()
	}
	wt.timer = time.AfterFunc(wt.debounce, wt.fire)
}

func (wt *Watcher) relevantLocked(name string) bool {
	if _, ok := wt.files[name]; ok {
		return true
	}
	for dir := range wt.dirs {
		if name == dir || strings.HasPrefix(name, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (wt *Watcher) fire() {
	wt.mu.Lock()
	wt.timer = nil
	wt.mu.Unlock()
	if wt.onChange != nil {
		wt.onChange()
	}
}
