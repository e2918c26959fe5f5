package ctlclient

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// StreamEvent is one sync event as received from the daemon.
type StreamEvent struct {
	Type string         `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data"`
}

// SessionID returns data.sessionId when present.
func (e *StreamEvent) SessionID() string {
	id, _ := e.Data["sessionId"].(string)
	return id
}

// readEvents parses a text/event-stream body. Only the event and data fields are used.
func readEvents(r *bufio.Reader, fn func(*StreamEvent) error) error {
	var eventType string
	var data strings.Builder

	dispatch := func() error {
		defer func() {
			eventType = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return nil
		}
		var ev StreamEvent
		if err := jsonUnmarshal([]byte(data.String()), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if ev.Type == "" {
			ev.Type = eventType
		}
		return fn(&ev)
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return dispatch()
			}
			return err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
}
