package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	// EventBufferSize bounds both the raw notify channel and the outgoing event channel.
	EventBufferSize        = 100
	defaultDebounceTimeout = 50 * time.Millisecond
)

type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeRemove ChangeKind = "remove"
)

// WatchEvent is one change below the watched root. Paths are absolute.
type WatchEvent struct {
	Kind  ChangeKind
	Paths []string
}

// FilterCallback returns true for paths whose events should be dropped.
type FilterCallback func(path string) bool

// FileWatcher watches a directory tree and delivers debounced change events.
//
// Delivery never blocks the producer. notify itself drops an event when the raw channel
// is full, and flushEvent drops an event when Events() is full. Losing events during a
// burst is accepted: the next reconciliation pass compares full listings and catches up.
type FileWatcher struct {
	watchDir        string
	events          chan WatchEvent
	rawEvents       chan notify.EventInfo
	done            chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
	pendingEvents   map[string]notify.EventInfo
	eventTimers     map[string]*time.Timer
	debounceMu      sync.Mutex
	debounceTimeout time.Duration
	dropped         uint64
	filter          FilterCallback
	callbackMu      sync.RWMutex
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		events:          make(chan WatchEvent, EventBufferSize),
		rawEvents:       make(chan notify.EventInfo, EventBufferSize),
		done:            make(chan struct{}),
		pendingEvents:   make(map[string]notify.EventInfo),
		eventTimers:     make(map[string]*time.Timer),
		debounceTimeout: defaultDebounceTimeout,
	}
}

// SetDebounceTimeout must be called before Start.
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	fw.debounceTimeout = timeout
}

// FilterPaths sets a callback that drops raw events before debouncing.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.filter = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWatch, fw.watchDir, err)
	}
	slog.Debug("file watcher start", "dir", fw.watchDir)

	fw.wg.Add(1)
	go fw.filterEvents(ctx)

	return nil
}

// Stop detaches the watcher and waits for the delivery goroutine. Events() is closed afterwards.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		notify.Stop(fw.rawEvents)
		close(fw.done)
		fw.wg.Wait()
		slog.Debug("file watcher stopped", "dir", fw.watchDir, "dropped", fw.Dropped())
	})
}

func (fw *FileWatcher) Events() <-chan WatchEvent {
	return fw.events
}

// Dropped returns how many events were discarded because Events() was full.
func (fw *FileWatcher) Dropped() uint64 {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()
	return fw.dropped
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.debounceMu.Lock()
		for path, timer := range fw.eventTimers {
			timer.Stop()
			delete(fw.eventTimers, path)
			delete(fw.pendingEvents, path)
		}
		fw.debounceMu.Unlock()

		fw.wg.Done()
		close(fw.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case event := <-fw.rawEvents:
			if fw.ignored(event.Path()) {
				continue
			}
			// inotify fires a burst of writes while a file is being written
			fw.debounceEvent(event)
		}
	}
}

func (fw *FileWatcher) ignored(path string) bool {
	fw.callbackMu.RLock()
	defer fw.callbackMu.RUnlock()
	return fw.filter != nil && fw.filter(path)
}

func (fw *FileWatcher) debounceEvent(event notify.EventInfo) {
	path := event.Path()

	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if timer, exists := fw.eventTimers[path]; exists {
		timer.Stop()
	}

	// a create followed by writes is still a create
	if prev, ok := fw.pendingEvents[path]; !ok || prev.Event() != notify.Create || event.Event() == notify.Remove {
		fw.pendingEvents[path] = event
	}
	fw.eventTimers[path] = time.AfterFunc(fw.debounceTimeout, func() {
		fw.flushEvent(path)
	})
}

func (fw *FileWatcher) flushEvent(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	event, exists := fw.pendingEvents[path]
	if !exists {
		return
	}
	delete(fw.pendingEvents, path)
	delete(fw.eventTimers, path)

	select {
	case <-fw.done:
		return
	default:
	}

	// never block the notify side, see FileWatcher
	select {
	case fw.events <- WatchEvent{Kind: changeKind(event.Event(), path), Paths: []string{path}}:
	default:
		fw.dropped++
		slog.Warn("file watcher dropped", "reason", "channel full", "path", path)
	}
}

// changeKind maps a notify event. Renames are reported for both ends of a move, so the
// path's existence decides between create and remove.
func changeKind(e notify.Event, path string) ChangeKind {
	switch e {
	case notify.Create:
		return ChangeCreate
	case notify.Remove:
		return ChangeRemove
	case notify.Rename:
		if _, err := os.Lstat(path); err == nil {
			return ChangeCreate
		}
		return ChangeRemove
	default:
		return ChangeModify
	}
}
