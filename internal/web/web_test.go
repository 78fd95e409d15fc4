package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackonomics/internal/api"
	"hackonomics/internal/apperr"
	"hackonomics/internal/config"
	"hackonomics/internal/model"
	"hackonomics/internal/session"
)

// fakeBackend records calls; methods not needed by a test return zero
// values.
type fakeBackend struct {
	sess *session.Manager

	events      []model.Event
	eventsErr   error
	eventsCalls atomic.Int32
	loginErr    error
	created     model.EventInput
	deletedID   string
	initCalls   atomic.Int32
	loggedOut   bool
	connected   bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sess: session.NewManager(nil)}
}

func (f *fakeBackend) Session() *session.Manager { return f.sess }

func (f *fakeBackend) Login(_ context.Context, req api.LoginRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if f.loginErr != nil {
		return f.loginErr
	}
	f.sess.Login("token")
	return nil
}

func (f *fakeBackend) Signup(_ context.Context, req api.SignupRequest) error { return req.Validate() }

func (f *fakeBackend) Logout(context.Context) {
	f.loggedOut = true
	f.sess.Logout()
}

func (f *fakeBackend) Me(context.Context) (*model.UserInfo, error) {
	return &model.UserInfo{ID: 1, Email: "me@example.com"}, nil
}

func (f *fakeBackend) InitCalendar(context.Context) error {
	f.initCalls.Add(1)
	return apperr.New("CATEGORY_ALREADY_EXISTS", "")
}

func (f *fakeBackend) CalendarConnected(context.Context) (bool, error) { return f.connected, nil }
func (f *fakeBackend) CalendarOAuthURL() string { return "https://api.example.com/calendar/oauth/login/" }

func (f *fakeBackend) Events(context.Context) ([]model.Event, error) {
	f.eventsCalls.Add(1)
	return f.events, f.eventsErr
}

func (f *fakeBackend) CreateEvent(_ context.Context, in model.EventInput) (*model.Event, error) {
	if err := api.ValidateEvent(in); err != nil {
		return nil, err
	}
	f.created = in
	return &model.Event{ID: "new", Title: in.Title, StartAt: in.StartAt, EndAt: in.EndAt}, nil
}

func (f *fakeBackend) UpdateEvent(_ context.Context, id string, in model.EventInput) (*model.Event, error) {
	return &model.Event{ID: id, Title: in.Title}, nil
}

func (f *fakeBackend) DeleteEvent(_ context.Context, id string) error {
	if id == "missing" {
		return apperr.New("EVENT_NOT_FOUND", "")
	}
	f.deletedID = id
	return nil
}

func (f *fakeBackend) Categories(context.Context) ([]model.Category, error) {
	return []model.Category{{ID: "c1", Name: "Food", Color: "#f00"}}, nil
}

func (f *fakeBackend) CreateCategory(_ context.Context, name, color string) (*model.Category, error) {
	return &model.Category{ID: "c2", Name: name, Color: color}, nil
}

func (f *fakeBackend) DeleteCategory(context.Context, string) error { return nil }

func (f *fakeBackend) Account(context.Context) (*model.Account, error) {
	return &model.Account{CountryCode: "KR", Currency: "KRW", AnnualIncome: 1}, nil
}

func (f *fakeBackend) MyExchangeRate(context.Context) (*model.ExchangeRate, error) {
	return &model.ExchangeRate{Base: "KRW", Target: "USD", Rate: 0.00075}, nil
}

func (f *fakeBackend) Countries(context.Context) ([]model.Country, error) { return nil, nil }

func (f *fakeBackend) BusinessNews(context.Context) ([]model.NewsItem, error) {
	return nil, apperr.New("EXTERNAL_SERVICE_ERROR", "")
}

var fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, cfg *config.Config, fb *fakeBackend) *Server {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return NewServer(cfg, fb, nil, WithClock(func() time.Time { return fixedNow }))
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, newFakeBackend())
	rec := do(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBasicAuth(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: "pw"}
	h := newTestServer(t, cfg, newFakeBackend()).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)

	rec := do(t, h, http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.SetBasicAuth("admin", "pw")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	fb := newFakeBackend()
	h := newTestServer(t, nil, fb).Handler()

	got := decodeBody[sessionResponse](t, do(t, h, http.MethodGet, "/api/session", ""))
	assert.False(t, got.Authenticated)

	rec := do(t, h, http.MethodPost, "/api/session/login", `{"email":"me@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, fb.initCalls.Load(), "calendar init failure does not fail login")

	got = decodeBody[sessionResponse](t, do(t, h, http.MethodGet, "/api/session", ""))
	assert.True(t, got.Authenticated)
	require.NotNil(t, got.User)
	assert.Equal(t, "me@example.com", got.User.Email)

	rec = do(t, h, http.MethodPost, "/api/session/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, fb.loggedOut)
	assert.False(t, fb.sess.Authenticated())
}

func TestLoginErrorsAreAppErrors(t *testing.T) {
	fb := newFakeBackend()
	fb.loginErr = apperr.New("INVALID_CREDENTIALS", "Wrong email or password.")
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodPost, "/api/session/login", `{"email":"me@example.com","password":"bad"}`)
	got := decodeBody[apperr.Error](t, rec)
	assert.Equal(t, "INVALID_CREDENTIALS", got.Code)
	assert.Equal(t, "Wrong email or password.", got.Message)
	assert.Equal(t, apperr.ActionShowAlert, got.Action)
	assert.Equal(t, got.Status, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/session/login", `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeClientValidation, decodeBody[apperr.Error](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/session/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectsNonJSONBody(t *testing.T) {
	h := newTestServer(t, nil, newFakeBackend()).Handler()

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded"} {
		req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader(`{"email":"me@example.com","password":"pw"}`))
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, ct)
		assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decodeBody[apperr.Error](t, rec).Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/session/login", strings.NewReader(`{"email":"me@example.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionRefresh(t *testing.T) {
	fb := newFakeBackend()
	var fail bool
	fb.sess.SetRefresher(session.RefresherFunc(func(context.Context) (string, error) {
		if fail {
			return "", apperr.New("REFRESH_TOKEN_INVALID", "")
		}
		return "oauth-token", nil
	}))
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodPost, "/api/session/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[sessionResponse](t, rec).Authenticated)
	tok, _ := fb.sess.Credential()
	assert.Equal(t, "oauth-token", tok)

	fail = true
	rec = do(t, h, http.MethodPost, "/api/session/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	got := decodeBody[apperr.Error](t, rec)
	assert.Equal(t, "REFRESH_TOKEN_INVALID", got.Code)
	assert.Equal(t, apperr.ActionLogout, got.Action)
	assert.False(t, fb.sess.Authenticated())
}

func TestSignupValidation(t *testing.T) {
	h := newTestServer(t, nil, newFakeBackend()).Handler()

	rec := do(t, h, http.MethodPost, "/api/session/signup",
		`{"email":"a@b.co","password":"x","confirm_password":"y","agreed_to_terms":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/session/signup",
		`{"email":"a@b.co","password":"x","confirm_password":"x","agreed_to_terms":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCalendarGrid(t *testing.T) {
	fb := newFakeBackend()
	fb.sess.Login("token")
	fb.events = []model.Event{{
		ID:      "trip",
		Title:   "Trip",
		StartAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC),
		EndAt:   time.Date(2024, 3, 12, 18, 0, 0, 0, time.UTC),
	}}
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodGet, "/api/calendar?month=2024-03", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Title    string   `json:"title"`
		Prev     string   `json:"prev"`
		Next     string   `json:"next"`
		Weekdays []string `json:"weekdays"`
		Cells    []struct {
			Date           time.Time `json:"date"`
			Day            int       `json:"day"`
			InCurrentMonth bool      `json:"in_current_month"`
			IsToday        bool      `json:"is_today"`
			Segments       []struct {
				Event   model.Event `json:"event"`
				IsStart bool        `json:"is_start"`
				IsEnd   bool        `json:"is_end"`
			} `json:"segments"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))

	assert.Equal(t, "March 2024", got.Title)
	assert.Equal(t, "2024-02", got.Prev)
	assert.Equal(t, "2024-04", got.Next)
	assert.Equal(t, "Sun", got.Weekdays[0])
	require.Len(t, got.Cells, 42)

	// March 2024 starts on a Friday: five leading cells.
	assert.Equal(t, 25, got.Cells[0].Day)
	assert.False(t, got.Cells[0].InCurrentMonth)
	assert.Equal(t, 1, got.Cells[5].Day)

	day10 := got.Cells[5+9]
	require.Len(t, day10.Segments, 1)
	assert.True(t, day10.Segments[0].IsStart)
	assert.False(t, day10.Segments[0].IsEnd)
	assert.True(t, got.Cells[5+14].IsToday)

	rec = do(t, h, http.MethodGet, "/api/calendar?month=March", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalendarMondayWeekStart(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WeekStart = "monday"
	h := newTestServer(t, cfg, newFakeBackend()).Handler()

	rec := do(t, h, http.MethodGet, "/api/calendar?month=2024-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Weekdays []string `json:"weekdays"`
		Cells    []struct {
			Day int `json:"day"`
		} `json:"cells"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Mon", got.Weekdays[0])
	assert.Equal(t, 26, got.Cells[0].Day)
}

func TestEventsCacheAndInvalidation(t *testing.T) {
	fb := newFakeBackend()
	fb.sess.Login("token")
	fb.events = []model.Event{{ID: "e1", Title: "Lunch"}}
	h := newTestServer(t, nil, fb).Handler()

	for i := 0; i < 3; i++ {
		rec := do(t, h, http.MethodGet, "/api/events", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.EqualValues(t, 1, fb.eventsCalls.Load())

	rec := do(t, h, http.MethodPost, "/api/events",
		`{"title":"Dinner","start_at":"2024-03-15T18:00:00Z","end_at":"2024-03-15T20:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Dinner", fb.created.Title)

	do(t, h, http.MethodGet, "/api/events", "")
	assert.EqualValues(t, 2, fb.eventsCalls.Load(), "create invalidates the cache")

	rec = do(t, h, http.MethodDelete, "/api/events/e1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "e1", fb.deletedID)

	rec = do(t, h, http.MethodDelete, "/api/events/missing", "")
	assert.Equal(t, "EVENT_NOT_FOUND", decodeBody[apperr.Error](t, rec).Code)
}

func TestEventsWithoutSession(t *testing.T) {
	fb := newFakeBackend()
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
	assert.EqualValues(t, 0, fb.eventsCalls.Load())
}

func TestEventsCacheFollowsSession(t *testing.T) {
	fb := newFakeBackend()
	fb.sess.Login("token-a")
	fb.events = []model.Event{{ID: "e1", Title: "Private"}}
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Private")

	// Session cleared behind the server's back, e.g. by a failed refresh.
	fb.sess.Logout()
	rec = do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/calendar?month=2024-03", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Private")

	// A different credential never reuses the previous list.
	fb.sess.Login("token-b")
	fb.events = []model.Event{{ID: "e2", Title: "Other"}}
	rec = do(t, h, http.MethodGet, "/api/events", "")
	assert.Contains(t, rec.Body.String(), "Other")
	assert.NotContains(t, rec.Body.String(), "Private")
	assert.EqualValues(t, 2, fb.eventsCalls.Load())
}

func TestCreateEventValidation(t *testing.T) {
	h := newTestServer(t, nil, newFakeBackend()).Handler()

	rec := do(t, h, http.MethodPost, "/api/events",
		`{"title":"x","start_at":"2024-03-15T18:00:00Z","end_at":"2024-03-15T17:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperr.CodeClientValidation, decodeBody[apperr.Error](t, rec).Code)
}

func TestPassThroughRoutes(t *testing.T) {
	fb := newFakeBackend()
	fb.connected = true
	h := newTestServer(t, nil, fb).Handler()

	rec := do(t, h, http.MethodGet, "/api/account", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KRW", decodeBody[model.Account](t, rec).Currency)

	rec = do(t, h, http.MethodGet, "/api/exchange-rate", "")
	assert.Equal(t, "USD", decodeBody[model.ExchangeRate](t, rec).Target)

	rec = do(t, h, http.MethodGet, "/api/countries", "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/news", "")
	got := decodeBody[apperr.Error](t, rec)
	assert.Equal(t, apperr.ActionRetry, got.Action)
	assert.Equal(t, got.Status, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/categories", "")
	assert.Len(t, decodeBody[[]model.Category](t, rec), 1)

	rec = do(t, h, http.MethodPost, "/api/categories", `{"name":"Travel","color":"#0f0"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/calendar/status", "")
	status := decodeBody[calendarStatusResponse](t, rec)
	assert.True(t, status.Connected)
	assert.NotEmpty(t, status.OAuthURL)

	rec = do(t, h, http.MethodPatch, "/api/events/e1", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
