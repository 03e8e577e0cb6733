// Package validation checks user-supplied forms before any network call.
// Failures carry a short, user-facing message naming the field.
package validation

// Error is a client-side validation failure for a single field.
type Error struct {
	// Field is the display label of the offending field.
	Field string

	// Message is shown to the user as-is.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates an Error for field.
func NewError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}
