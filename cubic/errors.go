package cubic

import (
	"errors"
	"fmt"
)

// Session lifecycle errors.
var (
	// ErrNotLoggedIn is returned when a token refresh is attempted
	// before any login has stored a refresh token.
	ErrNotLoggedIn = errors.New("no refresh token available, login first")

	// ErrSessionClosed is returned by any call made after Close.
	ErrSessionClosed = errors.New("session is closed")
)

// AuthError is a non-200 response from the login or refresh endpoint.
// It carries the HTTP status and the raw response body for caller-side
// diagnostics.
type AuthError struct {
	Op         string // "login" or "refresh"
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed (status %d)", e.Op, e.StatusCode)
	}

	return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Body)
}

// RequestError is a non-200 response from any authenticated API call.
type RequestError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s failed (status %d)", e.Method, e.Endpoint, e.StatusCode)
	}

	return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}
