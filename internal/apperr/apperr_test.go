package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		code       string
		wantCode   string
		wantAction Action
	}{
		{code: "TOKEN_EXPIRED", wantCode: "TOKEN_EXPIRED", wantAction: ActionRedirectLogin},
		{code: "REFRESH_TOKEN_INVALID", wantCode: "REFRESH_TOKEN_INVALID", wantAction: ActionLogout},
		{code: "RATE_LIMITED", wantCode: "RATE_LIMITED", wantAction: ActionRetry},
		{code: "CALENDAR_NOT_CONNECTED", wantCode: "CALENDAR_NOT_CONNECTED", wantAction: ActionIgnore},
		{code: "EMAIL_ALREADY_EXISTS", wantCode: "EMAIL_ALREADY_EXISTS", wantAction: ActionShowAlert},
		{code: "SOMETHING_NEW", wantCode: CodeInternal, wantAction: ActionShowAlert},
		{code: "", wantCode: CodeInternal, wantAction: ActionShowAlert},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			def := Lookup(tt.code)
			assert.Equal(t, tt.wantCode, def.Code)
			assert.Equal(t, tt.wantAction, def.Action)
			assert.NotZero(t, def.Status)
			assert.NotEmpty(t, def.Message)
		})
	}
}

func TestLoadCatalogRequiresInternalError(t *testing.T) {
	_, err := loadCatalog([]byte(`{"X": {"code": "X", "status": 400, "message": "x"}}`))
	assert.Error(t, err)

	_, err = loadCatalog([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewOverridesMessage(t *testing.T) {
	e := New(CodeClientValidation, "Please agree to the terms and conditions.")
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, CodeClientValidation, e.Code)
	assert.Equal(t, "Please agree to the terms and conditions.", e.Message)
	assert.Equal(t, ActionShowAlert, e.Action)

	e = New("TOKEN_EXPIRED", "")
	assert.Equal(t, "Your session has expired.", e.Message)
}

func TestFromResponse(t *testing.T) {
	t.Run("known code keeps backend message", func(t *testing.T) {
		e := FromResponse(http.StatusConflict, []byte(`{"code":"EMAIL_ALREADY_EXISTS","message":"taken"}`))
		assert.Equal(t, "EMAIL_ALREADY_EXISTS", e.Code)
		assert.Equal(t, "taken", e.Message)
		assert.Equal(t, http.StatusConflict, e.Status)
	})

	t.Run("unknown code falls back to internal error", func(t *testing.T) {
		e := FromResponse(http.StatusTeapot, []byte(`{"code":"BREWING","message":"short and stout","status":418}`))
		assert.Equal(t, CodeInternal, e.Code)
		assert.Equal(t, "short and stout", e.Message)
		assert.Equal(t, 418, e.Status)
	})

	t.Run("body without code is unknown", func(t *testing.T) {
		e := FromResponse(http.StatusBadGateway, []byte(`<html>bad gateway</html>`))
		assert.Equal(t, CodeUnknown, e.Code)
		assert.Equal(t, http.StatusBadGateway, e.Status)
		assert.Equal(t, "Unexpected error occurred", e.Message)
	})

	t.Run("detail is surfaced", func(t *testing.T) {
		e := FromResponse(http.StatusUnauthorized, []byte(`{"detail":"No active account"}`))
		assert.Equal(t, CodeUnknown, e.Code)
		assert.Equal(t, "No active account", e.Message)
	})
}

func TestFromAndAs(t *testing.T) {
	assert.Nil(t, From(nil))

	cause := errors.New("dial tcp: connection refused")
	e := From(cause)
	assert.Equal(t, CodeInternal, e.Code)
	assert.ErrorIs(t, e, cause)

	wrapped := fmt.Errorf("load events: %w", New("EVENT_NOT_FOUND", ""))
	got := From(wrapped)
	assert.Equal(t, "EVENT_NOT_FOUND", got.Code)

	ae, ok := As(wrapped)
	require.True(t, ok)
	assert.True(t, errors.Is(wrapped, New("EVENT_NOT_FOUND", "other text")))
	assert.False(t, errors.Is(wrapped, New("NOT_FOUND", "")))
	assert.Equal(t, "Failed to load calendar", ae.WithMessage("Failed to load calendar").Message)
	assert.Equal(t, "Event not found.", ae.Message)
}
