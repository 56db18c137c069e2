// Package client is a REST client for the terminal host control API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	apihttp "github.com/GriffinCanCode/termhost/internal/api/http"
	"github.com/GriffinCanCode/termhost/internal/session"
	"github.com/GriffinCanCode/termhost/internal/terminal"
	"github.com/GriffinCanCode/termhost/internal/terminal/state"
)

// Defaults for Options.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultRetryCount = 2
	DefaultRetryWait  = 200 * time.Millisecond
)

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	Timeout    time.Duration
	RetryCount int
	RetryWait  time.Duration
	// HTTPClient replaces the underlying transport client.
	HTTPClient *http.Client
}

// Client talks to one server.
type Client struct {
	rest *resty.Client
}

// New creates a client for baseURL, e.g. "http://127.0.0.1:8000".
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	} else if opts.RetryCount == 0 {
		opts.RetryCount = DefaultRetryCount
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = DefaultRetryWait
	}

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(4 * opts.RetryWait).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			s := r.StatusCode()
			return s == http.StatusServiceUnavailable || s == http.StatusTooManyRequests
		})
	return &Client{rest: rc}
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	req := c.rest.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		e := &Error{Status: resp.StatusCode()}
		if eb, ok := resp.Error().(*errorBody); ok {
			e.Message = eb.Error
		}
		return e
	}
	return nil
}

// Health is the /health response.
type Health struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	Terminals        int    `json:"terminals"`
	SurfaceConnected bool   `json:"surfaceConnected"`
	UptimeSeconds    int64  `json:"uptimeSeconds"`
}

// Health reports server status.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var out Health
	err := c.do(ctx, resty.MethodGet, "/health", nil, &out)
	return out, err
}

// List returns the open terminals.
func (c *Client) List(ctx context.Context) ([]state.Terminal, error) {
	var out struct {
		Terminals []state.Terminal `json:"terminals"`
	}
	err := c.do(ctx, resty.MethodGet, "/api/terminals", nil, &out)
	return out.Terminals, err
}

// Create opens a terminal.
func (c *Client) Create(ctx context.Context, req apihttp.CreateTerminalRequest) (state.Terminal, error) {
	var out struct {
		Terminal state.Terminal `json:"terminal"`
	}
	err := c.do(ctx, resty.MethodPost, "/api/terminals", req, &out)
	return out.Terminal, err
}

// Delete closes a terminal.
func (c *Client) Delete(ctx context.Context, terminalID string) error {
	return c.do(ctx, resty.MethodDelete, "/api/terminals/"+url.PathEscape(terminalID), nil, nil)
}

// Input writes data to a terminal.
func (c *Client) Input(ctx context.Context, terminalID, data string) error {
	return c.do(ctx, resty.MethodPost, "/api/terminals/"+url.PathEscape(terminalID)+"/input",
		apihttp.InputRequest{Data: data}, nil)
}

// Focus makes a terminal active.
func (c *Client) Focus(ctx context.Context, terminalID string) error {
	return c.do(ctx, resty.MethodPost, "/api/terminals/"+url.PathEscape(terminalID)+"/focus", nil, nil)
}

// Save persists the session and returns the number of terminals saved.
func (c *Client) Save(ctx context.Context) (int, error) {
	var out struct {
		Saved int `json:"saved"`
	}
	err := c.do(ctx, resty.MethodPost, "/api/session/save", nil, &out)
	return out.Saved, err
}

// Restore recreates the saved session.
func (c *Client) Restore(ctx context.Context) (session.RestoreResult, error) {
	var out session.RestoreResult
	err := c.do(ctx, resty.MethodPost, "/api/session/restore", nil, &out)
	return out, err
}

// Diagnostics returns the server's diagnostic view.
func (c *Client) Diagnostics(ctx context.Context) (terminal.Diagnostics, error) {
	var out terminal.Diagnostics
	err := c.do(ctx, resty.MethodGet, "/api/diagnostics", nil, &out)
	return out, err
}
