// Package api is the client for the hackonomics backend.
//
// Every call goes through Client.do, which attaches the session's bearer
// credential and, on a 401 from a non-auth endpoint, performs exactly one
// silent refresh followed by one replay of the original request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hackonomics/internal/apperr"
	appLog "hackonomics/internal/log"
	"hackonomics/internal/session"
)

const defaultTimeout = 15 * time.Second

// maxErrorBody bounds how much of a failed response is read for mapping.
const maxErrorBody = 64 << 10

// Client makes REST calls to the backend on behalf of one session.
type Client struct {
	baseURL string
	http    *http.Client
	session *session.Manager

	deviceOnce sync.Once
	deviceID   string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is
// installed if the client has none, since refresh relies on cookies.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-send timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithDeviceID sets the device identifier sent on login.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithSession shares an existing session manager. Its refresher is replaced
// by this client.
func WithSession(m *session.Manager) Option {
	return func(c *Client) { c.session = m }
}

// New creates a client targeting baseURL (e.g. "https://api.example.com/api").
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("api: base URL is empty")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("api: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	if c.session == nil {
		c.session = session.NewManager(nil)
	}
	c.session.SetRefresher(session.RefresherFunc(c.RefreshToken))
	return c, nil
}

// Session returns the session manager this client reads credentials from.
func (c *Client) Session() *session.Manager { return c.session }

// DeviceID returns the identifier sent on login, generating one on first use
// when none was configured.
func (c *Client) DeviceID() string {
	c.deviceOnce.Do(func() {
		if c.deviceID == "" {
			c.deviceID = uuid.NewString()
		}
	})
	return c.deviceID
}

// request describes one logical call. body is kept as bytes so the call can
// be replayed after a refresh.
type request struct {
	method   string
	path     string
	body     []byte
	noBearer bool
}

func newRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return r, fmt.Errorf("api: encode %s %s: %w", method, path, err)
		}
		r.body = data
	}
	return r, nil
}

// do runs the request state machine and decodes a successful body into out
// (when out is non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	a := newAttempt(r.path)
	for {
		status, body, err := c.send(ctx, r, a)
		if err != nil {
			a.fail()
			appLog.Error("api request failed", err, "method", r.method, "path", r.path)
			return apperr.From(err)
		}

		switch a.observe(status) {
		case stateSuccess:
			return decode(r, body, out)

		case stateNeedsRefresh:
			appLog.Debug("api request unauthorized, refreshing", "method", r.method, "path", r.path)
			if _, err := c.session.Refresh(ctx); err != nil {
				a.fail()
				appLog.Info("api refresh failed, session cleared", "path", r.path, "reason", err.Error())
				return apperr.From(err)
			}
			a.refreshed()

		default:
			return apperr.FromResponse(status, body)
		}
	}
}

// send performs one HTTP exchange with the credential current at send time.
func (c *Client) send(ctx context.Context, r request, a *attempt) (int, []byte, error) {
	var rd io.Reader
	if r.body != nil {
		rd = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !r.noBearer {
		if tok, ok := c.session.Credential(); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	a.sent()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var body []byte
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err = io.ReadAll(resp.Body)
	} else {
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	}
	if err != nil {
		return 0, nil, err
	}

	appLog.Debug("api response", "method", r.method, "path", r.path, "status", resp.StatusCode, "send", a.sends)
	return resp.StatusCode, body, nil
}

func decode(r request, body []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.From(fmt.Errorf("api: decode %s %s: %w", r.method, r.path, err))
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	r, _ := newRequest(http.MethodGet, path, nil)
	return c.do(ctx, r, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	r, err := newRequest(http.MethodPost, path, payload)
	if err != nil {
		return apperr.From(err)
	}
	return c.do(ctx, r, out)
}

func (c *Client) put(ctx context.Context, path string, payload, out any) error {
	r, err := newRequest(http.MethodPut, path, payload)
	if err != nil {
		return apperr.From(err)
	}
	return c.do(ctx, r, out)
}

func (c *Client) delete(ctx context.Context, path string) error {
	r, _ := newRequest(http.MethodDelete, path, nil)
	return c.do(ctx, r, nil)
}
