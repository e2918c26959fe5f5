package ctlclient

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"github.com/imroc/req/v3"
)

var (
	ErrNoDaemonURL  = errors.New("ctlclient: daemon url missing")
	ErrNoDaemon     = errors.New("ctlclient: daemon not running")
	ErrUnauthorized = errors.New("ctlclient: unauthorized")
	ErrNotFound     = errors.New("ctlclient: not found")
	ErrConflict     = errors.New("ctlclient: conflict")
)

// APIError is the daemon's JSON error body.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %d %s - %s", e.Status, e.Code, e.Message)
}

// Unwrap lets callers test the status class with errors.Is.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if isDialError(requestErr) {
		return fmt.Errorf("%s: %w: %w", operation, ErrNoDaemon, requestErr)
	}
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && (apiErr.Code != "" || apiErr.Message != "") {
			apiErr.Status = resp.StatusCode
			return fmt.Errorf("%s: %w", operation, apiErr)
		}
		return fmt.Errorf("%s: %w", operation, &APIError{
			Status:  resp.StatusCode,
			Message: http.StatusText(resp.StatusCode),
		})
	}

	return nil
}

func isDialError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
