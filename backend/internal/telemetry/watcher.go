package telemetry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mission-control/backend/pkg/logger"
)

// DefaultDebounce coalesces bursts of file events into one invalidation
const DefaultDebounce = 500 * time.Millisecond

// Watcher invalidates a collector when source documents or transcripts change.
type Watcher struct {
	collector *Collector
	watcher   *fsnotify.Watcher
	logger    *zap.Logger
	debounce  time.Duration

	mu        sync.Mutex
	callbacks []func()
	timer     *time.Timer
}

// NewWatcher watches the collector's workspace root, memory tree and sessions dir.
// Directories that do not exist are skipped.
func NewWatcher(collector *Collector) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		collector: collector,
		watcher:   fsWatcher,
		logger:    logger.Named("watcher"),
		debounce:  DefaultDebounce,
	}

	src := collector.Sources()
	w.add(src.WorkspaceDir)
	if src.MemoryDir != "" {
		_ = filepath.WalkDir(src.MemoryDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // Skip dirs we can't access
			}
			if d.IsDir() {
				w.add(path)
			}
			return nil
		})
	}
	w.add(src.SessionsDir)

	return w, nil
}

func (w *Watcher) add(dir string) {
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("Failed to watch directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	w.logger.Debug("Watching directory", zap.String("dir", dir))
}

// OnChange registers a callback run after each invalidation
func (w *Watcher) OnChange(callback func()) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, callback)
	w.mu.Unlock()
}

// Run processes file events until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		// New memory subdirectories are watched as they appear
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.add(event.Name)
			return
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !isSourceFile(event.Name) {
		return
	}

	w.logger.Debug("Source file changed",
		zap.String("file", event.Name),
		zap.String("operation", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.collector.Invalidate()
	w.logger.Info("Telemetry invalidated after source change")

	w.mu.Lock()
	callbacks := make([]func(), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

func isSourceFile(path string) bool {
	return isMarkdown(path) || filepath.Ext(path) == ".jsonl"
}
