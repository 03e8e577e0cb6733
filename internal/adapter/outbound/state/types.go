// Package state provides file-based persistence for the villagehub session.
//
// The session file is a flat JSON object holding the three session entries
// (accessToken, refreshToken, user). This package provides atomic writes,
// file locking, and backup functionality.
package state

// fileVersion is the schema version written alongside the entries.
const fileVersion = "1"

// sessionFile is the on-disk layout.
type sessionFile struct {
	// Version is the schema version for forward compatibility. Currently "1".
	Version string `json:"version"`

	// Entries holds the persisted session entries, keyed by
	// session.KeyAccessToken, session.KeyRefreshToken and session.KeyUser.
	Entries map[string]string `json:"entries"`
}
