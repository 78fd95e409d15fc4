// Package session owns the process-wide access credential.
//
// Manager is the only writer of the credential. Readers get a snapshot via
// Credential. Refreshes are coordinated here so that concurrent requests
// that all hit an expired credential share a single refresh call.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	appLog "hackonomics/internal/log"
)

// ErrNoRefresher is returned by Refresh when the manager was built without
// a Refresher.
var ErrNoRefresher = errors.New("session: no refresher configured")

// Refresher exchanges the ambient long-lived credential (e.g. a refresh
// cookie) for a new access credential.
type Refresher interface {
	RefreshToken(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) RefreshToken(ctx context.Context) (string, error) { return f(ctx) }

// Claims is the unverified subset of JWT claims used for status reporting.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Manager holds the current access credential.
type Manager struct {
	mu    sync.RWMutex
	token string

	refresher Refresher
	flight    singleflight.Group
}

// NewManager returns an unauthenticated manager. r may be nil, in which
// case Refresh and Bootstrap always fail.
func NewManager(r Refresher) *Manager {
	return &Manager{refresher: r}
}

// SetRefresher installs the refresher. Used when the refresher itself
// depends on the manager (the API client).
func (m *Manager) SetRefresher(r Refresher) {
	m.mu.Lock()
	m.refresher = r
	m.mu.Unlock()
}

// Login stores a freshly issued credential.
func (m *Manager) Login(token string) {
	m.SetCredential(token)
}

// Logout clears the credential locally.
func (m *Manager) Logout() {
	m.SetCredential("")
}

// SetCredential overwrites the credential. An empty token clears it.
func (m *Manager) SetCredential(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

// clearIf clears the credential only if it is still prev, so a login that
// lands during a failing refresh survives.
func (m *Manager) clearIf(prev string) {
	m.mu.Lock()
	if m.token == prev {
		m.token = ""
	}
	m.mu.Unlock()
}

// Credential returns a snapshot of the credential and whether one is set.
func (m *Manager) Credential() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Authenticated reports whether a credential is held.
func (m *Manager) Authenticated() bool {
	_, ok := m.Credential()
	return ok
}

// Refresh obtains a new credential and stores it. Concurrent callers share
// one in-flight refresh and all observe its result. On failure the
// credential the refresh started from is cleared and the refresh error is
// returned.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	m.mu.RLock()
	r := m.refresher
	m.mu.RUnlock()
	if r == nil {
		return "", ErrNoRefresher
	}

	ch := m.flight.DoChan("refresh", func() (any, error) {
		prev, _ := m.Credential()
		// Detached from any single caller so one cancelled request does
		// not fail the refresh for everyone sharing it.
		tok, err := r.RefreshToken(context.WithoutCancel(ctx))
		if err != nil {
			m.clearIf(prev)
			return "", err
		}
		m.SetCredential(tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			appLog.Debug("session refresh shared with concurrent caller")
		}
		return res.Val.(string), nil
	}
}

// Bootstrap makes one best-effort refresh at startup. Failure leaves the
// session unauthenticated and is not reported to the caller.
func (m *Manager) Bootstrap(ctx context.Context) {
	if _, err := m.Refresh(ctx); err != nil {
		appLog.Info("session bootstrap: no active session", "reason", err.Error())
		return
	}
	kv := []any{}
	if c, ok := m.Claims(); ok {
		kv = append(kv, "subject", c.Subject, "expires_at", c.ExpiresAt.Format(time.RFC3339))
	}
	appLog.Info("session bootstrap: restored session", kv...)
}

// Claims decodes the credential as a JWT without verifying it. The
// signature is the backend's concern; this is for display only. Opaque
// credentials report false.
func (m *Manager) Claims() (Claims, bool) {
	tok, ok := m.Credential()
	if !ok {
		return Claims{}, false
	}

	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return Claims{}, false
	}

	var c Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		c.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time.UTC()
	}
	return c, true
}
