package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrSessionExpired is matched by every terminal refresh failure.
	ErrSessionExpired = errors.New("session expired")

	// ErrNoSession is returned when a refresh is attempted without a stored refresh token.
	ErrNoSession = errors.New("no session")

	// ErrNotLoggedIn is returned before any network call when a command
	// needs identity and neither token is stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionChanged is returned when a refresh result arrives after the
	// session it was requested for has been logged out or replaced.
	ErrSessionChanged = errors.New("session changed during refresh")
)

// SessionExpiredError is returned when the refresh procedure fails. By the
// time it is returned the Token Store has already been cleared; only a fresh
// login can establish a new session.
type SessionExpiredError struct {
	// Cause is what made the refresh fail (ErrNoSession, a transport error,
	// an API error).
	Cause error
}

// Error returns a human-readable description of the expiry.
func (e *SessionExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session expired: %v", e.Cause)
	}
	return "session expired"
}

// Unwrap returns the underlying cause.
func (e *SessionExpiredError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrSessionExpired).
func (e *SessionExpiredError) Is(target error) bool {
	return target == ErrSessionExpired
}
