package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback receives the freshly loaded config, or the load error
type ReloadCallback func(cfg *Config, err error)

// Watcher reloads a config file when it changes on disk
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ReloadCallback
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	cancel context.CancelFunc
}

// NewWatcher watches the directory holding path, since editors commonly
// replace files by rename instead of writing them in place.
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		path:     abs,
		callback: callback,
		debounce: 300 * time.Millisecond,
	}, nil
}

// Start begins watching for file changes
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
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
				if w.callback != nil {
					w.callback(nil, err)
				}
			}
		}
	}()
}

// Stop stops watching for file changes
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	w.watcher.Close()
}

// SetDebounce sets the quiet period before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounce = d
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if w.callback != nil {
		w.callback(cfg, err)
	}
}
