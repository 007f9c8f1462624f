package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned (wrapped in *Error) when the clinic API answers
// 401. By then the session has already been cleared.
var ErrUnauthorized = errors.New("unauthorized")

// FieldError is one entry of a validation error list.
type FieldError struct {
	Loc  []interface{} `json:"loc"`
	Msg  string        `json:"msg"`
	Type string        `json:"type,omitempty"`
}

// Path joins the location segments with " > ".
func (f FieldError) Path() string {
	if len(f.Loc) == 0 {
		return "field"
	}
	parts := make([]string, 0, len(f.Loc))
	for _, p := range f.Loc {
		parts = append(parts, fmt.Sprint(p))
	}
	return strings.Join(parts, " > ")
}

// Error is a non-2xx answer from the clinic API.
type Error struct {
	Status int
	Method string
	Path   string
	// Detail is set when the payload's detail is a plain string.
	Detail string
	// Fields is set when the payload's detail is a list of field errors.
	Fields []FieldError
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" && len(e.Fields) > 0 {
		msg = e.Fields[0].Path() + ": " + e.Fields[0].Msg
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, msg)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// decodeError reads the {"detail": ...} envelope. Bodies of any other shape
// leave both Detail and Fields empty.
func decodeError(status int, method, path string, body []byte) *Error {
	e := &Error{Status: status, Method: method, Path: path}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return e
	}

	var s string
	if err := json.Unmarshal(envelope.Detail, &s); err == nil {
		e.Detail = s
		return e
	}
	var fields []FieldError
	if err := json.Unmarshal(envelope.Detail, &fields); err == nil {
		e.Fields = fields
	}
	return e
}

// IsStatus reports whether err is an *Error with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
