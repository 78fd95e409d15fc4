package api

import (
	"net/http"
	"strings"
)

// state is the lifecycle of one logical request.
type state int

const (
	stateInitial state = iota
	stateSent
	stateSuccess
	stateNeedsRefresh
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "INITIAL"
	case stateSent:
		return "SENT"
	case stateSuccess:
		return "SUCCESS"
	case stateNeedsRefresh:
		return "NEEDS_REFRESH"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Auth endpoints never trigger a refresh: a 401 from them is final.
const (
	pathLogin   = "/auth/login/"
	pathSignup  = "/auth/signup/"
	pathRefresh = "/auth/refresh/"
	pathLogout  = "/auth/logout/"
	pathMe      = "/auth/me/"
)

func isAuthEndpoint(path string) bool {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	switch path {
	case pathLogin, pathSignup, pathRefresh:
		return true
	}
	return false
}

// attempt tracks one logical request across its (at most two) sends. The
// retried flag lives here, never on the outgoing *http.Request.
type attempt struct {
	path    string
	state   state
	retried bool
	sends   int
}

func newAttempt(path string) *attempt {
	return &attempt{path: path, state: stateInitial}
}

func (a *attempt) sent() {
	a.sends++
	a.state = stateSent
}

// observe moves a SENT attempt to its next state given the response status.
func (a *attempt) observe(status int) state {
	switch {
	case status >= 200 && status < 300:
		a.state = stateSuccess
	case status == http.StatusUnauthorized && !a.retried && !isAuthEndpoint(a.path):
		a.state = stateNeedsRefresh
	default:
		a.state = stateFailed
	}
	return a.state
}

// refreshed records a successful refresh. The next send is the last one:
// whatever its outcome, no second refresh is attempted.
func (a *attempt) refreshed() {
	a.retried = true
	a.state = stateInitial
}

func (a *attempt) fail() {
	a.state = stateFailed
}
