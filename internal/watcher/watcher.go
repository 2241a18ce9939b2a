// Package watcher wraps fsnotify behind the narrow Subscribe/Unsubscribe
// interface the driver needs: per-file callbacks, with directory-level
// watches shared and refcounted across every subscribed file in that
// directory.
package watcher

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/soren-n/tickle/internal/logger"
)

// Event enumerates the filesystem event kinds a subscriber may observe.
type Event int

const (
	Created Event = iota
	Modified
	Deleted
	Moved
)

func (e Event) String() string {
	switch e {
	case Created:
		return "Created"
	case Modified:
		return "Modified"
	case Deleted:
		return "Deleted"
	case Moved:
		return "Moved"
	default:
		return "Unknown"
	}
}

// Callback is invoked on every observed event for a subscribed path.
type Callback func(Event)

// Watcher subscribes individual file paths to callbacks, watching each
// subscribed file's parent directory exactly once regardless of how many
// files within it are subscribed.
type Watcher struct {
	log logger.Logger

	mu         sync.Mutex
	fsw        *fsnotify.Watcher
	callbacks  map[string]Callback
	dirRefs    map[string]int
	started    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// New constructs a Watcher. Start must be called before events are
// delivered.
func New(log logger.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		log:       log,
		fsw:       fsw,
		callbacks: make(map[string]Callback),
		dirRefs:   make(map[string]int),
	}, nil
}

// Subscribe registers callback to be invoked on every event observed for
// path. A no-op if path is already subscribed.
func (w *Watcher) Subscribe(path string, callback Callback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.callbacks[path]; exists {
		return nil
	}
	w.callbacks[path] = callback

	dir := filepath.Dir(path)
	if w.dirRefs[dir] > 0 {
		w.dirRefs[dir]++
		return nil
	}
	if err := w.fsw.Add(dir); err != nil {
		delete(w.callbacks, path)
		return err
	}
	w.dirRefs[dir] = 1
	return nil
}

// Unsubscribe removes path's callback, dropping the parent directory watch
// once no subscribed file within it remains.
func (w *Watcher) Unsubscribe(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.callbacks[path]; !exists {
		return nil
	}
	delete(w.callbacks, path)

	dir := filepath.Dir(path)
	w.dirRefs[dir]--
	if w.dirRefs[dir] <= 0 {
		delete(w.dirRefs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// Start begins delivering events to subscribed callbacks on a background
// goroutine.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.loop()
}

// Stop halts event delivery and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.dispatch(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.log != nil {
				w.log.Warn("watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event) {
	w.mu.Lock()
	callback, ok := w.callbacks[ev.Name]
	w.mu.Unlock()
	if !ok {
		return
	}

	var kind Event
	switch {
	case ev.Has(fsnotify.Create):
		kind = Created
	case ev.Has(fsnotify.Write):
		kind = Modified
	case ev.Has(fsnotify.Remove):
		kind = Deleted
	case ev.Has(fsnotify.Rename):
		kind = Moved
	default:
		return
	}
	callback(kind)
}
