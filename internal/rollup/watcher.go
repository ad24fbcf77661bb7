package rollup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher observes the readings database file and triggers a
// callback after writes settle. SQLite under WAL touches both the
// main file and its -wal sidecar, so events for either count; the
// debounce collapses a burst of ingest writes into one rebuild.
type Watcher struct {
	path     string
	onChange func()
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	mu       sync.Mutex
	lastEdit time.Time
	dirty    bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewWatcher creates a watcher for the database at path. onChange
// fires once per settled burst of writes.
func NewWatcher(
	path string, debounce time.Duration,
	logger *zap.Logger, onChange func(),
) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is nil: %w", os.ErrInvalid)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the parent directory; watching the file directly
	// breaks when SQLite replaces it during checkpointing.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		watcher:  fsw,
		logger:   logger,
		debounce: debounce,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	return w, nil
}

// Start begins processing file events in a goroutine.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop stops the watcher and waits for it to finish.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		<-w.done
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	defer close(w.done)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

// handleEvent records a pending change when the event concerns
// the database file or one of its SQLite sidecars.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !strings.HasPrefix(event.Name, w.path) {
		return
	}

	w.mu.Lock()
	w.lastEdit = w.now()
	w.dirty = true
	w.mu.Unlock()
}

func (w *Watcher) flush() {
	w.mu.Lock()
	ready := w.dirty && w.now().Sub(w.lastEdit) >= w.debounce
	if ready {
		w.dirty = false
	}
	w.mu.Unlock()

	if ready {
		w.logger.Info("database changed, triggering rollup rebuild",
			zap.String("path", w.path))
		w.onChange()
	}
}
