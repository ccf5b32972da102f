// Package apierr models Sectify's HTTP error surface as a single sum type,
// translated to problem+json once at the outer handler — see spec.md §7 and
// the DESIGN NOTES redesign of exception-based control flow into an explicit
// Result/error value.
package apierr

import (
	"encoding/json"
	"net/http"
)

// Kind is one of the error kinds enumerated in spec.md §7.
type Kind string

const (
	KindAuthRequired   Kind = "AuthRequired"
	KindForbidden      Kind = "Forbidden"
	KindNotFound       Kind = "NotFound"
	KindInvalid        Kind = "Invalid"
	KindConflict       Kind = "Conflict"
	KindIntegrityError Kind = "IntegrityError"
	KindThrottled      Kind = "Throttled"
	KindTransient      Kind = "Transient"
)

var statusByKind = map[Kind]int{
	KindAuthRequired:   http.StatusUnauthorized,
	KindForbidden:      http.StatusForbidden,
	KindNotFound:       http.StatusNotFound,
	KindInvalid:        http.StatusBadRequest,
	KindConflict:       http.StatusConflict,
	KindIntegrityError: http.StatusInternalServerError,
	KindThrottled:      http.StatusTooManyRequests,
	KindTransient:      http.StatusServiceUnavailable,
}

// Error is the sum type every Sectify handler returns instead of raising an
// exception. Message is safe to put on the wire: callers must not stuff
// internal detail (stack traces, SQL, file paths) into it — IntegrityError
// in particular never exposes detail per spec.md §7.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return string(e.Kind) + ": " + e.Message }

func New(kind Kind, message string) *Error { return &Error{Kind: kind, Message: message} }

func AuthRequired(msg string) *Error   { return New(KindAuthRequired, msg) }
func Forbidden(msg string) *Error      { return New(KindForbidden, msg) }
func NotFound(msg string) *Error       { return New(KindNotFound, msg) }
func Invalid(msg string) *Error        { return New(KindInvalid, msg) }
func Conflict(msg string) *Error       { return New(KindConflict, msg) }
func IntegrityError() *Error           { return New(KindIntegrityError, "integrity check failed") }
func Throttled(msg string) *Error      { return New(KindThrottled, msg) }
func Transient(msg string) *Error      { return New(KindTransient, msg) }

// Status returns the HTTP status code for e, defaulting to 500 for an
// unrecognized kind (should not happen — every Kind constant is mapped).
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Write serializes e as problem+json at its mapped status code.
func Write(w http.ResponseWriter, e *Error) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(e)
}

// As extracts an *Error from err, falling back to a generic 503 Transient
// error so no handler ever leaks a raw error string.
func As(err error) *Error {
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(KindTransient, "internal error")
}
