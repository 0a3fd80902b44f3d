package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired matches AuthRequiredError via errors.Is.
	ErrAuthRequired = errors.New("authentication required")
	// ErrSessionExpired matches SessionExpiredError via errors.Is.
	ErrSessionExpired = errors.New("session expired")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrIncorrectPassword  = errors.New("incorrect password")
	ErrTooManyRequests    = errors.New("too many requests, try again later")
)

// AuthRequiredError is returned when a request is attempted without a stored
// credential pair for the current role. The session has already been reset.
type AuthRequiredError struct {
	Role Role
}

func (e *AuthRequiredError) Error() string {
	if e.Role == RoleNone {
		return "authentication required: no active role"
	}
	return fmt.Sprintf("authentication required: no stored credentials for role %s", e.Role)
}

func (e *AuthRequiredError) Is(target error) bool { return target == ErrAuthRequired }

// SessionExpiredError is returned when a 401 could not be recovered by a
// token refresh. The role's tokens have already been deleted.
type SessionExpiredError struct {
	Role  Role
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("session expired for role %s", e.Role)
	}
	return fmt.Sprintf("session expired for role %s: %v", e.Role, e.Cause)
}

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

func (e *SessionExpiredError) Unwrap() error { return e.Cause }

// RequestFailure carries a non-OK business response surfaced by GetJSON.
type RequestFailure struct {
	Status int
	// Body is the decoded JSON error body, or nil when it was empty or not JSON.
	Body any
	Raw  []byte
}

// Detail returns the backend's "detail" message, or a generic fallback.
func (e *RequestFailure) Detail() string {
	if m, ok := e.Body.(map[string]any); ok {
		if detail, ok := m["detail"].(string); ok && detail != "" {
			return detail
		}
	}
	return "Request failed"
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Detail())
}
