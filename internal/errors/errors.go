package errors

import (
	"errors"
	"fmt"
)

// Error taxonomy for the session layer
var (
	// Login errors
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Renewal errors
	ErrNoRenewalToken = errors.New("no renewal token")
	ErrRenewalFailed  = errors.New("renewal failed")

	// Transport errors. ErrNetwork does not imply the session is invalid.
	ErrNetwork = errors.New("network error")
	ErrTimeout = errors.New("timeout")

	// Session errors
	ErrSessionExpired   = errors.New("session expired")
	ErrNotAuthenticated = errors.New("not authenticated")

	// General errors
	ErrBadResponse = errors.New("unexpected response")
)

// APIError is a non-2xx answer from the remote auth API.
// Message holds the server's own text when it sent one.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // taxonomy sentinel, may be nil
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %d): %s", e.Err, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ServerMessage returns the message the server sent with err, if any
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
