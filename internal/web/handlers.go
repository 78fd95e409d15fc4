package web

import (
	"net/http"
	"time"

	"hackonomics/internal/api"
	"hackonomics/internal/apperr"
	"hackonomics/internal/calendar"
	appLog "hackonomics/internal/log"
	"hackonomics/internal/model"
)

type sessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          *model.UserInfo `json:"user,omitempty"`
	Subject       string          `json:"subject,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess := s.backend.Session()
	if !sess.Authenticated() {
		writeJSON(w, http.StatusOK, sessionResponse{})
		return
	}

	user, err := s.backend.Me(r.Context())
	if err != nil {
		// A failed refresh inside Me leaves the session cleared.
		if !sess.Authenticated() {
			writeJSON(w, http.StatusOK, sessionResponse{})
			return
		}
		writeError(w, r, err)
		return
	}

	resp := sessionResponse{Authenticated: true, User: user}
	if c, ok := sess.Claims(); ok {
		resp.Subject = c.Subject
		if !c.ExpiresAt.IsZero() {
			exp := c.ExpiresAt
			resp.ExpiresAt = &exp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	err := s.backend.Login(ctx, api.LoginRequest{Email: in.Email, Password: in.Password, RememberMe: in.RememberMe})
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.InvalidateEvents()

	// Provisioning is idempotent on the backend; a failure here is not a
	// login failure.
	if err := s.backend.InitCalendar(ctx); err != nil {
		appLog.Debug("calendar init after login failed", "reason", err.Error())
	}
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true})
}

type signupRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	AgreedToTerms   bool   `json:"agreed_to_terms"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in signupRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	err := s.backend.Signup(r.Context(), api.SignupRequest{
		Email:           in.Email,
		Password:        in.Password,
		ConfirmPassword: in.ConfirmPassword,
		AgreedToTerms:   in.AgreedToTerms,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.backend.Logout(r.Context())
	s.InvalidateEvents()
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh re-runs the startup bootstrap on demand: one refresh using
// the client's own refresh cookie.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if _, err := s.backend.Session().Refresh(r.Context()); err != nil {
		s.InvalidateEvents()
		writeError(w, r, err)
		return
	}
	s.InvalidateEvents()
	writeJSON(w, http.StatusOK, sessionResponse{Authenticated: true})
}

type calendarResponse struct {
	Title    string   `json:"title"`
	Prev     string   `json:"prev"`
	Next     string   `json:"next"`
	Weekdays []string `json:"weekdays"`
	calendar.Grid
}

// handleCalendar returns the 42-cell grid for ?month=YYYY-MM (default: the
// current UTC month) with backend events followed by ICS overlay events.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.now().UTC()
	month := calendar.StartOfMonth(now)
	if q := r.URL.Query().Get("month"); q != "" {
		m, err := calendar.ParseMonth(q)
		if err != nil {
			writeError(w, r, apperr.Validation("month must be YYYY-MM"))
			return
		}
		month = m
	}

	events, err := s.BackendEvents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	opts := calendar.Options{WeekStart: time.Sunday}
	if s.cfg != nil && s.cfg.Monday() {
		opts.WeekStart = time.Monday
	}

	all := make([]model.Event, 0, len(events))
	all = append(all, events...)
	if s.overlay != nil {
		probe := calendar.BuildMonthGridAt(month, nil, now, opts)
		start, end := probe.MonthRange()
		all = append(all, s.overlay.Events(start, end.Add(-time.Nanosecond))...)
	}

	grid := calendar.BuildMonthGridAt(month, all, now, opts)
	writeJSON(w, http.StatusOK, calendarResponse{
		Title:    calendar.MonthTitle(month),
		Prev:     calendar.PrevMonth(month).Format("2006-01"),
		Next:     calendar.NextMonth(month).Format("2006-01"),
		Weekdays: grid.Weekdays(),
		Grid:     grid,
	})
}

type calendarStatusResponse struct {
	Connected bool   `json:"connected"`
	OAuthURL  string `json:"oauth_url"`
}

func (s *Server) handleCalendarStatus(w http.ResponseWriter, r *http.Request) {
	connected, err := s.backend.CalendarConnected(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calendarStatusResponse{Connected: connected, OAuthURL: s.backend.CalendarOAuthURL()})
}

func (s *Server) handleCalendarInit(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.InitCalendar(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.BackendEvents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.backend.CreateEvent(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.InvalidateEvents()
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var in model.EventInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ev, err := s.backend.UpdateEvent(r.Context(), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.InvalidateEvents()
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteEvent(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	s.InvalidateEvents()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.backend.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in categoryRequest
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	cat, err := s.backend.CreateCategory(r.Context(), in.Name, in.Color)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cat)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := s.backend.Account(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	rate, err := s.backend.MyExchangeRate(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := s.backend.Countries(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if countries == nil {
		countries = []model.Country{}
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	news, err := s.backend.BusinessNews(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, news)
}
