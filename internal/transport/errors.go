package transport

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrRequest is returned when a request could not be completed
	// (connection refused, timeout, too many redirects, cancelled context).
	ErrRequest = errors.New("request failed")

	// ErrUnexpectedStatus is returned for responses with a 4xx or 5xx status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrDecode is returned when a JSON body cannot be decoded.
	ErrDecode = errors.New("cannot decode response body")

	// ErrInvalidProxy is returned for proxy URLs that are not http, https, socks5 or socks5h.
	ErrInvalidProxy = errors.New("invalid proxy URL")
)

// StatusError describes a response whose status code signals failure.
type StatusError struct {
	URL        string
	StatusCode int
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s returned %d", ErrUnexpectedStatus, e.URL, e.StatusCode)
}

// Unwrap makes errors.Is(err, ErrUnexpectedStatus) hold.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}
