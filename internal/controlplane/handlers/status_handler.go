package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/bucketsync/internal/version"
)

type StatusHandler struct {
	sessions  SessionManager
	startedAt time.Time
}

func NewStatusHandler(sessions SessionManager) *StatusHandler {
	return &StatusHandler{
		sessions:  sessions,
		startedAt: time.Now().UTC(),
	}
}

// Status returns daemon health and build info.
func (h *StatusHandler) Status(ctx *gin.Context) {
	active := 0
	if h.sessions != nil {
		active = len(h.sessions.ListActive())
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		Status:         "ok",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
		Version:        version.Version,
		Revision:       version.Revision,
		BuildDate:      version.BuildDate,
		StartedAt:      h.startedAt.Format(time.RFC3339),
		ActiveSessions: active,
	})
}
