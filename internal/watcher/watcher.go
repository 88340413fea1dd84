// Package watcher reports debounced file system changes below a set of paths.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is used when New receives a non-positive delay.
const DefaultDebounce = 300 * time.Millisecond

// Handler receives the distinct paths changed during one quiet period.
type Handler func(ctx context.Context, paths []string) error

// Watcher wraps fsnotify. Directories are watched recursively; single files
// are watched through their parent so editors that replace files on save are
// still seen.
type Watcher struct {
	fs     *fsnotify.Watcher
	delay  time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	trees []string
	files map[string]struct{}
}

// New creates a Watcher. Call Close when done.
func New(delay time.Duration, logger *zap.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		fs:     w,
		delay:  delay,
		logger: logger,
		files:  make(map[string]struct{}),
	}, nil
}

// Add starts watching paths.
func (w *Watcher) Add(paths ...string) error {
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		if info.IsDir() {
			if err := w.addTree(abs); err != nil {
				return err
			}
			continue
		}
		w.mu.Lock()
		w.files[abs] = struct{}{}
		w.mu.Unlock()
		if err := w.fs.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
		}
	}
	return nil
}

func (w *Watcher) addTree(root string) error {
	w.mu.Lock()
	w.trees = append(w.trees, root)
	w.mu.Unlock()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", root, err)
	}
	return nil
}

// relevant reports whether a change to path concerns a watched file or tree.
func (w *Watcher) relevant(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; ok {
		return true
	}
	for _, root := range w.trees {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run delivers changes to handler until ctx is cancelled. Handler errors are
// logged and do not stop the loop.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	timer := time.NewTimer(w.delay)
	timer.Stop()
	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("fsnotify events channel closed")
			}
			if !w.relevant(ev.Name) {
				continue
			}
			w.follow(ev)
			pending[ev.Name] = struct{}{}
			timer.Reset(w.delay)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("fsnotify errors channel closed")
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			w.logger.Debug("files changed", zap.Strings("paths", paths))
			if err := handler(ctx, paths); err != nil {
				w.logger.Error("watch handler failed", zap.Error(err))
			}
		}
	}
}

// follow adds directories created inside a watched tree.
func (w *Watcher) follow(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.fs.Add(ev.Name); err != nil {
		w.logger.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
	}
}

// Close releases the fsnotify resources.
func (w *Watcher) Close() error {
	if err := w.fs.Close(); err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}
	return nil
}
