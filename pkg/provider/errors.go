// Package provider holds what every external generation service adapter
// shares: error classification, output parsing and a bounded HTTP client.
package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Callers branch on these with errors.Is.
var (
	// ErrUnavailable means the provider cannot be used at all: no
	// credential, disabled, or the credential was refused.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrTransport means the call failed in flight: network error,
	// timeout, rate limit or a server-side failure.
	ErrTransport = errors.New("provider transport failure")

	// ErrRejected means the provider answered but refused the request or
	// returned nothing usable.
	ErrRejected = errors.New("provider rejected request")
)

// Error is a classified provider failure.
type Error struct {
	Kind     error
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the error kind so errors.Is(err, ErrTransport) works.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable builds an ErrUnavailable error.
func Unavailable(name string, err error) *Error {
	return &Error{Kind: ErrUnavailable, Provider: name, Err: err}
}

// Transport builds an ErrTransport error.
func Transport(name string, err error) *Error {
	return &Error{Kind: ErrTransport, Provider: name, Err: err}
}

// Rejected builds an ErrRejected error.
func Rejected(name string, err error) *Error {
	return &Error{Kind: ErrRejected, Provider: name, Err: err}
}

// FromStatus classifies a non-2xx HTTP status.
func FromStatus(name string, status int, body string) *Error {
	var kind error
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrUnavailable
	case status == http.StatusTooManyRequests, status >= 500:
		kind = ErrTransport
	default:
		kind = ErrRejected
	}
	var err error
	if body != "" {
		err = errors.New(body)
	}
	return &Error{Kind: kind, Provider: name, Status: status, Err: err}
}

// Kind returns the classified kind of err, or nil when err is not a
// provider error.
func Kind(err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return nil
}
