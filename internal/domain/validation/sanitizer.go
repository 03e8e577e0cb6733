package validation

import (
	"strings"
	"unicode"
)

// MaxStringLength is the maximum length of a free-text field (1MB).
// Longer values are truncated before upload.
const MaxStringLength = 1048576

// Clean trims surrounding whitespace from a free-text value, removes
// control characters other than newline and tab, and truncates it to
// MaxStringLength bytes.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	if len(s) > MaxStringLength {
		// Drop any rune split by the cut.
		s = strings.ToValidUTF8(s[:MaxStringLength], "")
	}
	return s
}
