package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Match them with errors.Is.
var (
	ErrTransport  = errors.New("transport error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("authentication error")
)

// Error describes a failed API call.
type Error struct {
	Kind       error
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %v (status %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, msg)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage is the text shown in a notification for this failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case ErrTransport:
		return "Could not reach the server. Please try again."
	case ErrAuth:
		return "Your session has expired. Please log in again."
	case ErrNotFound:
		return "The requested item no longer exists."
	default:
		return "The request was rejected."
	}
}

func transportError(op string, err error) *Error {
	return &Error{Kind: ErrTransport, Op: op, Err: err}
}

// statusError classifies a non-2xx response.
func statusError(op string, status int, message string) *Error {
	e := &Error{Op: op, StatusCode: status, Message: message}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind = ErrAuth
	case status == http.StatusNotFound:
		e.Kind = ErrNotFound
	case status >= 400 && status < 500:
		e.Kind = ErrValidation
	default:
		e.Kind = ErrTransport
	}
	return e
}

// Message returns the text to surface to the user for any error.
func Message(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return err.Error()
}

// IgnoreNotFound returns nil when err only says the target is already gone.
func IgnoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
