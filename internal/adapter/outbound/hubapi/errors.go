package hubapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrInvalidCredentials is returned when the server rejects a login.
	ErrInvalidCredentials = errors.New("login failed: invalid credentials")

	// ErrMissingToken is returned when a login or refresh response carries no access token.
	ErrMissingToken = errors.New("response missing access token")

	// ErrNotFound matches an *APIError with status 404.
	ErrNotFound = errors.New("not found")
)

// APIError is returned for any non-2xx response the caller did not map
// to something more specific.
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int
	// Body is the raw response body, truncated to maxErrorBody bytes.
	Body string
	// Message is the server's "message" (or "error") field, if the body was JSON.
	Message string
	// FieldErrors holds per-field messages in the order the server sent them.
	FieldErrors FieldErrors
}

// FieldError is one per-field message.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is a JSON object of field messages decoded in document order.
type FieldErrors []FieldError

// UnmarshalJSON decodes a {"field":"message"} object keeping key order.
// Non-string values are kept as their raw JSON text.
func (f *FieldErrors) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fieldErrors: expected object, got %v", tok)
	}
	var out FieldErrors
	for dec.More() {
		key, err := dec.Token()
		if err != nil {
			return err
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var msg string
		if json.Unmarshal(raw, &msg) != nil {
			msg = string(raw)
		}
		out = append(out, FieldError{Field: fmt.Sprint(key), Message: msg})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// Error returns a human-readable description of the failure.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("hub api: HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("hub api: HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrNotFound).
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// FieldErrorText joins the field messages with ". " in the order the
// server sent them. Empty if the server sent none.
func (e *APIError) FieldErrorText() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, fe := range e.FieldErrors {
		msgs[i] = fe.Message
	}
	return strings.Join(msgs, ". ")
}

// RegistrationError is returned when the server refuses a registration.
// Message is the server's response text, e.g. "Username is already taken".
type RegistrationError struct {
	StatusCode int
	Message    string
}

// Error returns a human-readable description of the refusal.
func (e *RegistrationError) Error() string {
	return fmt.Sprintf("Registration failed: %s", e.Message)
}
