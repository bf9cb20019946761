package router

import (
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// AgentsWatcher hot-reloads the agent-tools file when it changes on disk.
type AgentsWatcher struct {
	agents    *Agents
	path      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
}

// WatchAgentsFile loads the file once and starts watching its directory for
// changes. Watching the directory rather than the file survives the
// rename-and-replace dance editors do on save.
func WatchAgentsFile(agents *Agents, path string) (*AgentsWatcher, error) {
	if err := agents.LoadFile(path); err != nil {
		return nil, err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(path)); err != nil {
		fsW.Close()
		return nil, err
	}

	w := &AgentsWatcher{
		agents:    agents,
		path:      path,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Close stops the watcher.
func (w *AgentsWatcher) Close() {
	close(w.cancel)
	w.fsWatcher.Close()
}

// loop processes fsnotify events with debouncing.
func (w *AgentsWatcher) loop() {
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := w.agents.LoadFile(w.path); err != nil {
					log.Printf("router: agents file reload failed: %v", err)
					return
				}
				log.Printf("router: agents file reloaded from %s", w.path)
			})

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Printf("router: agents watcher error: %v", err)
		}
	}
}
