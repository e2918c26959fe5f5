package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/openmined/bucketsync/internal/utils"
)

type RegistryOptions struct {
	// AutoSync runs a local to remote pass after watcher activity settles.
	AutoSync bool
	// AutoSyncDelay is the quiet period before an auto sync pass.
	AutoSyncDelay time.Duration
	// DebounceTimeout is passed to each session's FileWatcher.
	DebounceTimeout time.Duration
}

// Registry tracks the keep-in-sync sessions of this process and guarantees at most one
// active session per local path. Nothing is persisted.
//
// Lock order is sessionsMu then watchersMu. No call path holds both at once.
type Registry struct {
	engine   *Engine
	observer Observer
	opts     RegistryOptions

	sessionsMu sync.RWMutex
	sessions   map[string]*Session
	paths      mapset.Set[string]

	watchersMu sync.RWMutex
	watchers   map[string]*FileWatcher

	startWatcher func(context.Context, *FileWatcher) error
}

func NewRegistry(engine *Engine, observer Observer, opts RegistryOptions) *Registry {
	return &Registry{
		engine:   engine,
		observer: observer,
		opts:     opts,
		sessions: make(map[string]*Session),
		paths:    mapset.NewThreadUnsafeSet[string](),
		watchers: make(map[string]*FileWatcher),

		startWatcher: func(ctx context.Context, fw *FileWatcher) error { return fw.Start(ctx) },
	}
}

// Start creates a session watching localPath. The path is created when missing.
// ctx only bounds the start itself, the session lives until Stop.
func (r *Registry) Start(ctx context.Context, loc Locator, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if loc.Bucket == "" {
		return "", fmt.Errorf("bucket required")
	}

	path, err := r.preparePath(localPath)
	if err != nil {
		return "", err
	}

	session := newSession(uuid.NewString(), loc, path, r.engine, r.observer, r.opts)

	// reserve the path before the watcher exists so concurrent starts cannot both win
	r.sessionsMu.Lock()
	if !r.paths.Add(path) {
		r.sessionsMu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, path)
	}
	r.sessions[session.ID()] = session
	r.sessionsMu.Unlock()

	watcher := NewFileWatcher(path)
	if r.opts.DebounceTimeout > 0 {
		watcher.SetDebounceTimeout(r.opts.DebounceTimeout)
	}
	watcher.FilterPaths(NewIgnoreList(path).ShouldIgnore)
	if err := r.startWatcher(context.Background(), watcher); err != nil {
		r.abort(session)
		return "", err
	}

	r.watchersMu.Lock()
	r.watchers[session.ID()] = watcher
	r.watchersMu.Unlock()

	session.start(watcher.Events())
	return session.ID(), nil
}

// Stop ends a session and frees its path. The completed notification carries the
// counters accumulated since start.
func (r *Registry) Stop(id string) error {
	r.sessionsMu.RLock()
	session, ok := r.sessions[id]
	r.sessionsMu.RUnlock()
	if !ok || !session.markStopping() {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	totals := session.shutdown()

	r.watchersMu.Lock()
	watcher := r.watchers[id]
	delete(r.watchers, id)
	r.watchersMu.Unlock()
	if watcher != nil {
		watcher.Stop()
	}

	r.release(session)

	slog.Info("sync session stopped", "id", id, "uploaded", totals.Uploaded, "downloaded", totals.Downloaded)
	return nil
}

// Get returns the state of an active session.
func (r *Registry) Get(id string) (SessionState, error) {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return SessionState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	state := session.State()
	if !state.IsActive {
		return SessionState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return state, nil
}

// ListActive returns every active session in no particular order.
func (r *Registry) ListActive() []SessionState {
	r.sessionsMu.RLock()
	defer r.sessionsMu.RUnlock()

	states := make([]SessionState, 0, len(r.sessions))
	for _, session := range r.sessions {
		if state := session.State(); state.IsActive {
			states = append(states, state)
		}
	}
	return states
}

// StopAll stops every active session, e.g. on shutdown.
func (r *Registry) StopAll() {
	for _, state := range r.ListActive() {
		if err := r.Stop(state.ID); err != nil {
			slog.Debug("sync session stop", "id", state.ID, "error", err)
		}
	}
}

// abort drops a session that never became active.
func (r *Registry) abort(session *Session) {
	session.cancel()
	session.mu.Lock()
	session.phase = phaseRemoved
	session.mu.Unlock()
	r.release(session)
}

func (r *Registry) release(session *Session) {
	r.sessionsMu.Lock()
	defer r.sessionsMu.Unlock()
	delete(r.sessions, session.ID())
	r.paths.Remove(session.state.LocalPath)
}

func (r *Registry) preparePath(localPath string) (string, error) {
	path, err := utils.ResolvePath(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIO, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrIO, path, err)
	}
	// two spellings of the same directory must collide
	if real, err := filepath.EvalSymlinks(path); err == nil {
		path = real
	}
	return path, nil
}
