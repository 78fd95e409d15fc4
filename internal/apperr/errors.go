package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is the user-facing form of any failure.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  Action `json:"action"`

	// Err is the underlying cause, if any. Never serialized.
	Err error `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%d): %s: %v", e.Code, e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code so errors.Is(err, apperr.New(code, ""))
// works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New builds an Error from a catalog key. A non-empty override replaces the
// catalog message.
func New(code, overrideMessage string) *Error {
	def := Lookup(code)
	msg := def.Message
	if overrideMessage != "" {
		msg = overrideMessage
	}
	return &Error{Status: def.Status, Code: def.Code, Message: msg, Action: def.Action}
}

// Validation is a client-side validation failure. These never reach the
// network.
func Validation(message string) *Error {
	return New(CodeClientValidation, message)
}

// backendBody is the error payload shape the backend sends.
type backendBody struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// FromResponse maps a non-2xx backend response. Bodies carrying both a code
// and a message are looked up in the catalog (unknown codes fall back to
// INTERNAL_ERROR, keeping the backend message); anything else becomes
// UNKNOWN_ERROR with the HTTP status.
func FromResponse(status int, body []byte) *Error {
	var b backendBody
	if err := json.Unmarshal(body, &b); err != nil || b.Code == "" || b.Message == "" {
		e := New(CodeUnknown, "")
		e.Status = status
		if err == nil && b.Detail != "" {
			e.Message = b.Detail
		}
		return e
	}

	def := Lookup(b.Code)
	e := &Error{Status: def.Status, Code: def.Code, Message: b.Message, Action: def.Action}
	if b.Status != 0 {
		e.Status = b.Status
	}
	return e
}

// From converts any error into an *Error. Errors that already are (or wrap)
// an *Error are returned as is; everything else becomes INTERNAL_ERROR
// wrapping the cause.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if ae, ok := As(err); ok {
		return ae
	}
	e := New(CodeInternal, "")
	e.Err = err
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// WithMessage returns a copy of e with its message replaced, as pages do
// when they want context-specific wording ("Failed to load calendar").
func (e *Error) WithMessage(msg string) *Error {
	cp := *e
	cp.Message = msg
	return &cp
}
