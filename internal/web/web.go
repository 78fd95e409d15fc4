// Package web serves the local JSON API: session control, the month grid
// and pass-through access to the backend's calendar, account and news data.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"

	"hackonomics/internal/api"
	"hackonomics/internal/apperr"
	"hackonomics/internal/config"
	"hackonomics/internal/ics"
	appLog "hackonomics/internal/log"
	"hackonomics/internal/model"
	"hackonomics/internal/session"
)

const (
	defaultEventsTTL = 30 * time.Second
	maxBodyBytes     = 1 << 20
	shutdownTimeout  = 5 * time.Second
)

var jsonMediaType = contenttype.NewMediaType("application/json")

// Backend is the subset of api.Client the server uses.
type Backend interface {
	Session() *session.Manager

	Login(ctx context.Context, req api.LoginRequest) error
	Signup(ctx context.Context, req api.SignupRequest) error
	Logout(ctx context.Context)
	Me(ctx context.Context) (*model.UserInfo, error)

	InitCalendar(ctx context.Context) error
	CalendarConnected(ctx context.Context) (bool, error)
	CalendarOAuthURL() string
	Events(ctx context.Context) ([]model.Event, error)
	CreateEvent(ctx context.Context, in model.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, id string, in model.EventInput) (*model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	Categories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, name, color string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	Account(ctx context.Context) (*model.Account, error)
	MyExchangeRate(ctx context.Context) (*model.ExchangeRate, error)
	Countries(ctx context.Context) ([]model.Country, error)
	BusinessNews(ctx context.Context) ([]model.NewsItem, error)
}

// Server provides the local HTTP API.
type Server struct {
	cfg     *config.Config
	backend Backend
	overlay *ics.Overlay
	mux     *http.ServeMux
	now     func() time.Time

	// Short-lived copy of the backend's event list; writes through this
	// server invalidate it.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
	eventsTTL   time.Duration
}

type eventsCache struct {
	events    []model.Event
	updatedAt time.Time
	// credential the list was fetched under; any other session misses.
	credential string
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithEventsTTL sets how long backend events are reused.
func WithEventsTTL(d time.Duration) Option {
	return func(s *Server) { s.eventsTTL = d }
}

// NewServer constructs a Server. overlay may be nil.
func NewServer(cfg *config.Config, backend Backend, overlay *ics.Overlay, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		backend:   backend,
		overlay:   overlay,
		mux:       http.NewServeMux(),
		now:       time.Now,
		eventsTTL: defaultEventsTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware guards every path except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="hackonomics", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/session", s.handleSession)
	s.mux.HandleFunc("POST /api/session/login", s.handleLogin)
	s.mux.HandleFunc("POST /api/session/signup", s.handleSignup)
	s.mux.HandleFunc("POST /api/session/logout", s.handleLogout)
	s.mux.HandleFunc("POST /api/session/refresh", s.handleRefresh)

	s.mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /api/calendar/status", s.handleCalendarStatus)
	s.mux.HandleFunc("POST /api/calendar/init", s.handleCalendarInit)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/categories", s.handleListCategories)
	s.mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	s.mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	s.mux.HandleFunc("GET /api/account", s.handleAccount)
	s.mux.HandleFunc("GET /api/exchange-rate", s.handleExchangeRate)
	s.mux.HandleFunc("GET /api/countries", s.handleCountries)
	s.mux.HandleFunc("GET /api/news", s.handleNews)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// BackendEvents returns the backend's events, reusing a cached copy younger
// than the TTL that was fetched under the current credential. Without a
// session it returns nil and drops the cache.
func (s *Server) BackendEvents(ctx context.Context) ([]model.Event, error) {
	tok, ok := s.backend.Session().Credential()
	if !ok {
		s.InvalidateEvents()
		return nil, nil
	}
	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && ec.credential == tok && s.now().Sub(ec.updatedAt) < s.eventsTTL {
		return ec.events, nil
	}
	return s.RefreshEvents(ctx)
}

// RefreshEvents refetches the backend's events and replaces the cache. It
// is a no-op returning nil when no session is held.
func (s *Server) RefreshEvents(ctx context.Context) ([]model.Event, error) {
	if !s.backend.Session().Authenticated() {
		s.InvalidateEvents()
		return nil, nil
	}
	events, err := s.backend.Events(ctx)
	if err != nil {
		return nil, err
	}
	// Read after the fetch so a refresh during it keys the new credential.
	tok, ok := s.backend.Session().Credential()
	if !ok {
		s.InvalidateEvents()
		return nil, nil
	}
	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{events: events, updatedAt: s.now(), credential: tok}
	s.eventsMu.Unlock()
	return events, nil
}

// InvalidateEvents drops the cached event list.
func (s *Server) InvalidateEvents() {
	s.eventsMu.Lock()
	s.eventsCache = nil
	s.eventsMu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

// writeError writes err as an AppError body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperr.From(err)
	status := ae.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		appLog.Error("api handler failed", err, "method", r.Method, "path", r.URL.Path)
	} else {
		appLog.Debug("api handler rejected", "method", r.Method, "path", r.URL.Path, "code", ae.Code)
	}
	writeJSON(w, status, ae)
}

// decodeJSON reads a bounded JSON body into v. The request must declare
// an application/json content type.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		return apperr.New("UNSUPPORTED_MEDIA_TYPE", "")
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	return nil
}
