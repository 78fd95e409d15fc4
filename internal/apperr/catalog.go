// Package apperr maps backend and client failures onto the fixed catalog of
// user-facing errors. Each catalog entry carries the action the UI is
// expected to take (alert, logout, redirect to login, retry, ignore).
package apperr

import (
	_ "embed"
	"encoding/json"
	"fmt"
)

// Action tells the caller how to react to an Error.
type Action string

const (
	ActionShowAlert     Action = "SHOW_ALERT"
	ActionLogout        Action = "LOGOUT"
	ActionRedirectLogin Action = "REDIRECT_LOGIN"
	ActionRetry         Action = "RETRY"
	ActionIgnore        Action = "IGNORE"
)

// Well-known catalog keys.
const (
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeClientValidation = "CLIENT_VALIDATION_ERROR"
)

// Definition is one catalog entry.
type Definition struct {
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
	Action  Action `json:"action"`
}

//go:embed error-codes.json
var rawErrorCodes []byte

// actions overrides the default SHOW_ALERT action per backend code.
var actions = map[string]Action{
	"AUTHENTICATION_REQUIRED": ActionRedirectLogin,
	"TOKEN_EXPIRED":           ActionRedirectLogin,
	"INVALID_TOKEN":           ActionLogout,
	"REFRESH_TOKEN_INVALID":   ActionLogout,
	"EXTERNAL_SERVICE_ERROR":  ActionRetry,
	"RATE_LIMITED":            ActionRetry,
	"CALENDAR_NOT_CONNECTED":  ActionIgnore,
}

var catalog = mustLoadCatalog(rawErrorCodes)

func mustLoadCatalog(raw []byte) map[string]Definition {
	c, err := loadCatalog(raw)
	if err != nil {
		panic(err)
	}
	return c
}

func loadCatalog(raw []byte) (map[string]Definition, error) {
	var backend map[string]Definition
	if err := json.Unmarshal(raw, &backend); err != nil {
		return nil, fmt.Errorf("apperr: decode error codes: %w", err)
	}
	if _, ok := backend[CodeInternal]; !ok {
		return nil, fmt.Errorf("apperr: catalog has no %s entry", CodeInternal)
	}

	out := make(map[string]Definition, len(backend))
	for key, def := range backend {
		if def.Code == "" {
			def.Code = key
		}
		def.Action = ActionShowAlert
		if a, ok := actions[key]; ok {
			def.Action = a
		}
		out[key] = def
	}
	return out, nil
}

// Lookup returns the definition for a backend code, falling back to
// INTERNAL_ERROR for codes the catalog does not know.
func Lookup(code string) Definition {
	if def, ok := catalog[code]; ok {
		return def
	}
	for _, def := range catalog {
		if def.Code == code {
			return def
		}
	}
	return catalog[CodeInternal]
}

// Known reports whether the catalog has an entry for code.
func Known(code string) bool {
	_, ok := catalog[code]
	return ok
}
