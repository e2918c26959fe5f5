// Package ctlclient talks to a running bucketsync daemon.
package ctlclient

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/bucketsync/internal/controlplane/handlers"
	bsync "github.com/openmined/bucketsync/internal/sync"
	"github.com/openmined/bucketsync/internal/version"
)

const (
	v1Status   = "/v1/status"
	v1Sessions = "/v1/sessions"
	v1Session  = "/v1/sessions/{id}"
	v1Sync     = "/v1/sync"
	v1Events   = "/v1/events"
	v1History  = "/v1/history"

	defaultTimeout = 30 * time.Second
)

type Client struct {
	client  *req.Client
	baseURL string
}

// New returns a client for the daemon at baseURL, e.g. "http://127.0.0.1:7938".
func New(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoDaemonURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(version.ShortWithApp()).
		SetTimeout(defaultTimeout).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal).
		SetCommonErrorResult(&APIError{})
	if token != "" {
		client.SetCommonBearerAuthToken(token)
	}

	return &Client{client: client, baseURL: baseURL}, nil
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Status(ctx context.Context) (*handlers.StatusResponse, error) {
	var status handlers.StatusResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&status).
		Get(v1Status)
	if err := handleAPIError(res, err, "status"); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) ListSessions(ctx context.Context) ([]bsync.SessionState, error) {
	var resp handlers.ListSessionsResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp).
		Get(v1Sessions)
	if err := handleAPIError(res, err, "list sessions"); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*bsync.SessionState, error) {
	var state bsync.SessionState
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetSuccessResult(&state).
		Get(v1Session)
	if err := handleAPIError(res, err, "get session"); err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) StartSession(ctx context.Context, params *handlers.StartSessionRequest) (string, error) {
	var resp handlers.StartSessionResponse
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&resp).
		Post(v1Sessions)
	if err := handleAPIError(res, err, "start session"); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

func (c *Client) StopSession(ctx context.Context, id string) error {
	res, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Delete(v1Session)
	return handleAPIError(res, err, "stop session")
}

// Sync runs a one-shot pass on the daemon. Large trees take a while, the request has no
// client side timeout beyond ctx.
func (c *Client) Sync(ctx context.Context, params *handlers.SyncRequest) (*bsync.SyncResult, error) {
	var result bsync.SyncResult
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(params).
		SetSuccessResult(&result).
		Post(v1Sync)
	if err := handleAPIError(res, err, "sync"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) History(ctx context.Context, limit int) (*handlers.HistoryResponse, error) {
	var resp handlers.HistoryResponse
	r := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&resp)
	if limit > 0 {
		r.SetQueryParam("limit", strconv.Itoa(limit))
	}
	res, err := r.Get(v1History)
	if err := handleAPIError(res, err, "history"); err != nil {
		return nil, err
	}
	return &resp, nil
}

// StreamEvents calls fn for every event until ctx ends, the daemon closes the stream or
// fn returns an error. sessionID may be empty for all sessions.
func (c *Client) StreamEvents(ctx context.Context, sessionID string, fn func(*StreamEvent) error) error {
	// the shared client timeout would cut the stream
	streamClient := c.client.Clone().SetTimeout(0)
	r := streamClient.R().
		SetContext(ctx).
		DisableAutoReadResponse()
	if sessionID != "" {
		r.SetQueryParam("session", sessionID)
	}

	res, err := r.Get(v1Events)
	if err != nil {
		return handleAPIError(res, err, "events")
	}
	defer res.Body.Close()

	if res.IsErrorState() {
		return fmt.Errorf("events: %w", &APIError{Status: res.StatusCode, Message: res.Status})
	}

	return readEvents(bufio.NewReader(res.Body), fn)
}
