package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	bsync "github.com/openmined/bucketsync/internal/sync"
)

type SessionHandler struct {
	sessions SessionManager
}

func NewSessionHandler(sessions SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List returns the active sessions ordered by local path.
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.sessions.ListActive()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LocalPath < sessions[j].LocalPath
	})
	c.PureJSON(http.StatusOK, &ListSessionsResponse{Sessions: sessions})
}

func (h *SessionHandler) Get(c *gin.Context) {
	state, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		abortWithSyncError(c, err)
		return
	}
	c.PureJSON(http.StatusOK, state)
}

// Start creates a keep-in-sync session. The session outlives the request.
func (h *SessionHandler) Start(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, err)
		return
	}

	loc := bsync.Locator{ProfileID: req.ProfileID, Bucket: req.Bucket, Prefix: req.Prefix}
	id, err := h.sessions.Start(c.Request.Context(), loc, req.LocalPath)
	if err != nil {
		abortWithSyncError(c, err)
		return
	}

	c.PureJSON(http.StatusCreated, &StartSessionResponse{SessionID: id})
}

func (h *SessionHandler) Stop(c *gin.Context) {
	if err := h.sessions.Stop(c.Param("id")); err != nil {
		abortWithSyncError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
