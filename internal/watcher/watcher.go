// Package watcher watches a target's maps directory for folders being
// added or removed outside the daemon's own install pipeline (e.g. a
// user dragging a folder in manually), debouncing bursts of filesystem
// events the same way the original client's file_watcher.rs does.
// Built on fsnotify, grounded on the fsnotify bridging pattern in
// tweag-asset-fuse's fs/watcher package, since Go's fsnotify has no
// built-in debounce unlike the Rust notify crate.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"saberd/internal/logging"
)

type EventKind string

const (
	EventCreated EventKind = "created"
	EventRemoved EventKind = "removed"
	EventRenamed EventKind = "renamed"
	EventRescan  EventKind = "rescan"
)

type Event struct {
	Kind EventKind
	Path string
}

const debounceWindow = 5 * time.Second
const maxConsecutiveFailures = 3

// rescanInterval is a Go-side substitute for notify's internal
// DebouncedEvent::Rescan: the Rust notify crate emits it when its own
// watch state needs rebuilding; fsnotify has no equivalent signal, so a
// periodic full rescan gives the same missed-event recovery guarantee.
const rescanInterval = 10 * time.Minute

// Watcher debounces fsnotify events for one directory and forwards a
// coalesced event stream to Events.
type Watcher struct {
	dir    string
	log    *logging.Logger
	fsw    *fsnotify.Watcher
	Events chan Event

	mu      sync.Mutex
	timers  map[string]*time.Timer
	once    sync.Once
	closeCh chan struct{}
}

func New(dir string, log *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		dir:     dir,
		log:     log,
		fsw:     fsw,
		Events:  make(chan Event, 32),
		timers:  make(map[string]*time.Timer),
		closeCh: make(chan struct{}),
	}, nil
}

// Start runs the bridging + debounce loop until ctx is cancelled. Three
// consecutive read failures from fsnotify terminate the watcher, same
// as the original client's receiver retry-then-stop rule.
func (w *Watcher) Start(ctx context.Context) {
	failures := 0
	rescan := time.NewTicker(rescanInterval)
	defer rescan.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.closeCh:
			return
		case <-rescan.C:
			select {
			case w.Events <- Event{Kind: EventRescan, Path: w.dir}:
			case <-ctx.Done():
			}
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			failures = 0
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			failures++
			if w.log != nil {
				w.log.WarnfThrottled("watcher-error:"+w.dir, time.Second, "watcher error on %s: %v", w.dir, err)
			}
			if failures >= maxConsecutiveFailures {
				if w.log != nil {
					w.log.Errorf("watcher on %s failed %d times in a row, stopping", w.dir, failures)
				}
				w.Stop()
				return
			}
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	var kind EventKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = EventCreated
	case ev.Op&fsnotify.Remove != 0:
		kind = EventRemoved
	case ev.Op&fsnotify.Rename != 0:
		kind = EventRenamed
	default:
		return
	}
	w.debounce(ctx, ev.Name, kind)
}

// debounce coalesces repeat events for the same path within the
// debounce window, publishing only the last observed kind.
func (w *Watcher) debounce(ctx context.Context, path string, kind EventKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(debounceWindow, func() {
		select {
		case w.Events <- Event{Kind: kind, Path: path}:
		case <-ctx.Done():
		}
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
	})
}

func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.closeCh)
		w.fsw.Close()
		close(w.Events)
	})
}
