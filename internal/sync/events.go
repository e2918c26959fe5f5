package sync

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const subscriberBufferSize = 64

type EventType string

const (
	EventSyncStarted   EventType = "sync-started"
	EventSyncProgress  EventType = "sync-progress"
	EventSyncCompleted EventType = "sync-completed"
	EventSyncError     EventType = "sync-error"
)

type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type StartedPayload struct {
	SessionID string `json:"sessionId"`
	LocalPath string `json:"localPath"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
}

type ProgressPayload struct {
	SessionID   string `json:"sessionId"`
	Current     uint64 `json:"current"`
	Total       uint64 `json:"total"`
	CurrentFile string `json:"currentFile"`
}

type CompletedPayload struct {
	SessionID       string `json:"sessionId"`
	FilesUploaded   uint64 `json:"filesUploaded"`
	FilesDownloaded uint64 `json:"filesDownloaded"`
}

type ErrorPayload struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

func newEvent(t EventType, data any) Event {
	return Event{Type: t, Time: time.Now().UTC(), Data: data}
}

// SessionID returns the session the event belongs to.
func (e Event) SessionID() string {
	switch d := e.Data.(type) {
	case StartedPayload:
		return d.SessionID
	case ProgressPayload:
		return d.SessionID
	case CompletedPayload:
		return d.SessionID
	case ErrorPayload:
		return d.SessionID
	}
	return ""
}

// Observer receives session notifications. Notify must not block. A returned error is
// logged by the session and otherwise ignored.
type Observer interface {
	Notify(event Event) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(event Event) error

func (f ObserverFunc) Notify(event Event) error {
	return f(event)
}

// EventBus fans events out to any number of subscribers. Slow subscribers miss events
// instead of holding up the sender.
type EventBus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel for receiving events. Release it with Unsubscribe.
func (b *EventBus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBufferSize)
	b.subs = append(b.subs, ch)
	return ch
}

func (b *EventBus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub == ch {
			close(sub)
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the current subscriber count.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Notify implements Observer.
func (b *EventBus) Notify(event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, sub := range b.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("event %s dropped for %d of %d subscribers", event.Type, dropped, len(b.subs))
	}
	return nil
}

// Close unsubscribes everyone.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		close(sub)
	}
	b.subs = nil
}

// notifySafe delivers an event without letting a failing or panicking observer
// take the caller down.
func notifySafe(obs Observer, event Event) {
	if obs == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync observer panic", "event", event.Type, "panic", r)
		}
	}()
	if err := obs.Notify(event); err != nil {
		slog.Debug("sync notify", "event", event.Type, "session", event.SessionID(), "error", err)
	}
}

var _ Observer = (*EventBus)(nil)
