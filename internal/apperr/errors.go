// Package apperr defines the error kinds shared by the frontier, replicas,
// gateway and crawler workers, and maps them to and from HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match them with errors.Is.
var (
	ErrConnectivity  = errors.New("connectivity failure")
	ErrStorageLocked = errors.New("storage locked")
	ErrStorage       = errors.New("storage failure")
	ErrConfiguration = errors.New("invalid configuration")
	ErrValidation    = errors.New("validation failed")
	ErrNoReplica     = errors.New("no replica available")
	ErrNotFound      = errors.New("not found")
)

// Error attaches an operation name and an optional cause to an error kind.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil && e.Op == "":
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// E builds an Error of the given kind.
func E(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validationf returns a validation error with a formatted message.
func Validationf(op, format string, args ...any) error {
	return E(ErrValidation, op, fmt.Errorf(format, args...))
}

// IsConnectivity reports whether err is a connectivity failure. A locked
// store counts as one.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrStorageLocked)
}

// IsLocked reports whether err is the transient locked-store condition.
func IsLocked(err error) bool {
	return errors.Is(err, ErrStorageLocked)
}

// HTTPStatusCode maps an error to the status code servers respond with.
func HTTPStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrStorageLocked):
		return http.StatusLocked
	case errors.Is(err, ErrNoReplica), errors.Is(err, ErrConnectivity):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromStatus turns a non-2xx response from a peer into an error kind.
func FromStatus(op string, status int, msg string) error {
	var kind error
	switch {
	case status == http.StatusBadRequest:
		kind = ErrValidation
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusLocked:
		kind = ErrStorageLocked
	case status == http.StatusServiceUnavailable:
		kind = ErrConnectivity
	case status >= http.StatusInternalServerError:
		kind = ErrStorage
	default:
		kind = ErrConnectivity
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return E(kind, op, fmt.Errorf("status %d: %s", status, msg))
}
