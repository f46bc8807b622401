package project

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fyrsmithlabs/memoryforge/internal/config"
)

// ConfigWatcher watches the config file backing a Router's active-project
// pointer for external writes — another process running `switch_project`
// against the same storage path — and refreshes the Router's in-memory
// config so subsequent reads see the change without a restart.
type ConfigWatcher struct {
	router  *Router
	watcher *fsnotify.Watcher
	stop    chan struct{}
	mu      sync.Mutex
}

// WatchConfig starts watching r's config file for changes. Callers must
// call Stop on the returned watcher to release the underlying inotify
// handle.
func WatchConfig(r *Router) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := w.Add(r.cfg.StoragePath); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch storage path: %w", err)
	}

	cw := &ConfigWatcher{router: r, watcher: w, stop: make(chan struct{})}
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	target := cw.router.cfg.ConfigFilePath()
	for {
		select {
		case <-cw.stop:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cw.reload()
		case _, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (cw *ConfigWatcher) reload() {
	reloaded, err := config.LoadWithFile(cw.router.cfg.ConfigFilePath())
	if err != nil {
		return
	}
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.router.cfg.ActiveProjectID = reloaded.ActiveProjectID
}

// Stop closes the watcher and releases its inotify handle.
func (cw *ConfigWatcher) Stop() {
	select {
	case <-cw.stop:
		return
	default:
		close(cw.stop)
		_ = cw.watcher.Close()
	}
}
