// Package observer follows the persisted session file and reports new
// iterations as the controller writes them.
package observer

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hochfrequenz/issue-agent/internal/domain"
)

// ProgressCallback is called with the current session and the records added
// since the previous call
type ProgressCallback func(sess *domain.Session, added []domain.IterationRecord)

// Loader reads the session file
type Loader interface {
	Load() (*domain.Session, error)
}

// SessionWatcher monitors the session file for saves
type SessionWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	store    Loader
	callback ProgressCallback
	debounce time.Duration
	log      *slog.Logger

	// Debounce state
	seen  int
	key   string
	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
}

// NewSessionWatcher creates a watcher for the session file at path.
// Saves replace the file by rename, so the parent directory is watched.
func NewSessionWatcher(path string, store Loader, callback ProgressCallback) (*SessionWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &SessionWatcher{
		watcher:  watcher,
		path:     filepath.Clean(path),
		store:    store,
		callback: callback,
		debounce: 200 * time.Millisecond, // Debounce rapid saves
		log:      slog.Default(),
	}, nil
}

// Start reports the current state once and then begins watching for saves
func (sw *SessionWatcher) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)
	sw.flush()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				sw.handleEvent(event)
			case err, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				sw.log.Warn("session watcher error", "error", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (sw *SessionWatcher) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.mu.Lock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.mu.Unlock()
	sw.watcher.Close()
}

func (sw *SessionWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != sw.path {
		return
	}
	// Saves show up as create (rename into place) or write
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	// Reset or start debounce timer
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.flush)
}

func (sw *SessionWatcher) flush() {
	sess, err := sw.store.Load()
	if err != nil {
		sw.log.Warn("failed to read session", "path", sw.path, "error", err)
		return
	}
	if sess == nil {
		return
	}

	sw.mu.Lock()
	// A different task replaced the file; report its whole history
	if key := sess.Key(); key != sw.key {
		sw.key = key
		sw.seen = 0
	}
	if sw.seen > len(sess.History) {
		sw.seen = 0
	}
	added := append([]domain.IterationRecord(nil), sess.History[sw.seen:]...)
	sw.seen = len(sess.History)
	sw.mu.Unlock()

	if len(added) > 0 && sw.callback != nil {
		sw.callback(sess, added)
	}
}

// SetDebounce sets the debounce duration for batching saves
func (sw *SessionWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounce = d
}

// SetLogger replaces the default logger
func (sw *SessionWatcher) SetLogger(l *slog.Logger) {
	sw.log = l
}
