package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	bsync "github.com/openmined/bucketsync/internal/sync"
)

var errEventsUnavailable = errors.New("event stream not available")

type SyncHandler struct {
	syncer Syncer
	events EventSource
}

func NewSyncHandler(syncer Syncer, events EventSource) *SyncHandler {
	return &SyncHandler{syncer: syncer, events: events}
}

// SyncOnce runs one pass and returns its counters. The pass stops when the client goes away.
func (h *SyncHandler) SyncOnce(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	dir, err := bsync.ParseDirection(req.Direction)
	if err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	loc := bsync.Locator{ProfileID: req.ProfileID, Bucket: req.Bucket, Prefix: req.Prefix}
	result, err := h.syncer.SyncOnce(c.Request.Context(), loc, req.LocalPath, dir)
	if err != nil {
		abortWithSyncError(c, err)
		return
	}

	c.PureJSON(http.StatusOK, result)
}

// Events streams sync events as server-sent events. ?session=<id> limits the stream to
// one session.
func (h *SyncHandler) Events(c *gin.Context) {
	if h.events == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, errEventsUnavailable)
		return
	}
	sessionID := c.Query("session")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	eventCh := h.events.Subscribe()
	defer h.events.Unsubscribe(eventCh)

	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-eventCh:
			if !ok {
				return false
			}
			if sessionID != "" && event.SessionID() != sessionID {
				return true
			}
			c.SSEvent(string(event.Type), event)
			return true
		}
	})
}
