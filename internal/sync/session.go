package sync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const DefaultAutoSyncDelay = 500 * time.Millisecond

type sessionPhase int

const (
	phaseStarting sessionPhase = iota
	phaseActive
	phaseStopping
	phaseRemoved
)

// Session is one keep-in-sync instance. It owns the loop that turns watcher events into
// notifications and, with auto sync on, into debounced local to remote passes.
type Session struct {
	mu     sync.RWMutex
	state  SessionState
	phase  sessionPhase
	totals SyncResult

	engine        *Engine
	observer      Observer
	autoSync      bool
	autoSyncDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	done   chan struct{}
}

func newSession(id string, loc Locator, localPath string, engine *Engine, observer Observer, opts RegistryOptions) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	delay := opts.AutoSyncDelay
	if delay <= 0 {
		delay = DefaultAutoSyncDelay
	}
	return &Session{
		state: SessionState{
			ID:        id,
			Locator:   loc,
			LocalPath: localPath,
		},
		phase:         phaseStarting,
		engine:        engine,
		observer:      observer,
		autoSync:      opts.AutoSync,
		autoSyncDelay: delay,
		ctx:           ctx,
		cancel:        cancel,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.state.ID
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	if state.LastSyncTime != nil {
		t := *state.LastSyncTime
		state.LastSyncTime = &t
	}
	return state
}

// Totals returns the counters accumulated by auto sync passes so far.
func (s *Session) Totals() SyncResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totals
}

// start runs the loop over events and marks the session active.
func (s *Session) start(events <-chan WatchEvent) {
	go s.run(events)

	notifySafe(s.observer, newEvent(EventSyncStarted, StartedPayload{
		SessionID: s.state.ID,
		LocalPath: s.state.LocalPath,
		Bucket:    s.state.Locator.Bucket,
		Prefix:    s.state.Locator.Prefix,
	}))

	s.mu.Lock()
	s.phase = phaseActive
	s.state.IsActive = true
	s.mu.Unlock()

	slog.Info("sync session started", "id", s.state.ID, "local", s.state.LocalPath,
		"bucket", s.state.Locator.Bucket, "prefix", s.state.Locator.Prefix, "autoSync", s.autoSync)
}

// markStopping flips an active session to stopping. Only the first caller wins.
func (s *Session) markStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseActive {
		return false
	}
	s.phase = phaseStopping
	s.state.IsActive = false
	return true
}

// shutdown signals the loop, waits for it to exit and reports the final counters.
func (s *Session) shutdown() SyncResult {
	close(s.stop)
	s.cancel()
	<-s.done

	totals := s.Totals()
	notifySafe(s.observer, newEvent(EventSyncCompleted, CompletedPayload{
		SessionID:       s.state.ID,
		FilesUploaded:   totals.Uploaded,
		FilesDownloaded: totals.Downloaded,
	}))

	s.mu.Lock()
	s.phase = phaseRemoved
	s.mu.Unlock()
	return totals
}

func (s *Session) run(events <-chan WatchEvent) {
	defer close(s.done)

	var timer *time.Timer
	var timerC <-chan time.Time
	resetTimer := func(d time.Duration) {
		if timer == nil {
			timer = time.NewTimer(d)
		} else {
			timer.Stop()
			timer.Reset(d)
		}
		timerC = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	if s.autoSync {
		resetTimer(0)
	}

	for {
		select {
		case <-s.stop:
			return

		case event, ok := <-events:
			if !ok {
				// watcher went away, keep serving stop
				events = nil
				continue
			}
			for _, path := range event.Paths {
				notifySafe(s.observer, newEvent(EventSyncProgress, ProgressPayload{
					SessionID:   s.state.ID,
					Current:     0,
					Total:       1,
					CurrentFile: path,
				}))
			}
			if s.autoSync {
				resetTimer(s.autoSyncDelay)
			}

		case <-timerC:
			timerC = nil
			s.autoSyncPass()
		}
	}
}

func (s *Session) autoSyncPass() {
	result, err := s.engine.runPass(s.ctx, s.state.ID, s.state.Locator, s.state.LocalPath, LocalToRemote)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		slog.Warn("sync session pass failed", "id", s.state.ID, "error", err)
		notifySafe(s.observer, newEvent(EventSyncError, ErrorPayload{
			SessionID: s.state.ID,
			Error:     err.Error(),
		}))
		return
	}

	now := time.Now().UTC()
	s.mu.Lock()
	s.totals.Add(result)
	s.state.LastSyncTime = &now
	s.mu.Unlock()
}
