package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/bucketsync/internal/history"
	"github.com/openmined/bucketsync/internal/profile"
	bsync "github.com/openmined/bucketsync/internal/sync"
)

const (
	CodeOk               string = "OK"
	ErrCodeBadRequest    string = "ERR_BAD_REQUEST"
	ErrCodeNotFound      string = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists string = "ERR_ALREADY_EXISTS"
	ErrCodeUnavailable   string = "ERR_UNAVAILABLE"
	ErrCodeUnknownError  string = "ERR_UNKNOWN_ERROR"
)

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

// abortWithSyncError maps sync and profile errors to a status code.
func abortWithSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bsync.ErrAlreadyExists):
		AbortWithError(c, http.StatusConflict, ErrCodeAlreadyExists, err)
	case errors.Is(err, bsync.ErrNotFound), errors.Is(err, profile.ErrProfileNotFound):
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, err)
	default:
		AbortWithError(c, http.StatusInternalServerError, ErrCodeUnknownError, err)
	}
}

// SessionManager is the part of sync.Registry the handlers use.
type SessionManager interface {
	Start(ctx context.Context, loc bsync.Locator, localPath string) (string, error)
	Stop(id string) error
	Get(id string) (bsync.SessionState, error)
	ListActive() []bsync.SessionState
}

type Syncer interface {
	SyncOnce(ctx context.Context, loc bsync.Locator, localPath string, dir bsync.Direction) (bsync.SyncResult, error)
}

type EventSource interface {
	Subscribe() <-chan bsync.Event
	Unsubscribe(ch <-chan bsync.Event)
}

type HistoryLister interface {
	List(ctx context.Context, limit int) ([]*history.Entry, error)
}

var (
	_ SessionManager = (*bsync.Registry)(nil)
	_ Syncer         = (*bsync.Engine)(nil)
	_ EventSource    = (*bsync.EventBus)(nil)
	_ HistoryLister  = (*history.Store)(nil)
)
