package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/openmined/bucketsync/internal/history"
)

const maxHistoryLimit = 1000

type HistoryResponse struct {
	Entries []*history.Entry `json:"entries"`
}

type HistoryHandler struct {
	history HistoryLister
}

func NewHistoryHandler(history HistoryLister) *HistoryHandler {
	return &HistoryHandler{history: history}
}

func (h *HistoryHandler) List(c *gin.Context) {
	if h.history == nil {
		AbortWithError(c, http.StatusServiceUnavailable, ErrCodeUnavailable, errors.New("history disabled"))
		return
	}

	limit := history.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
		return
	}
	c.PureJSON(http.StatusOK, &HistoryResponse{Entries: entries})
}
