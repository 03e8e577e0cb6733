// Package session owns the client's credential state: the access token,
// the refresh token and the cached user snapshot.
package session

import (
	"encoding/json"
	"fmt"
)

// Persisted entry keys. Every backend stores exactly these three string entries.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
)

// User is the denormalized identity snapshot cached for display.
// It is not authoritative; the server decides who the caller is.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Session is the client's local belief about its authenticated identity.
// Empty strings and a nil User mean "absent".
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *User
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is what a successful login yields.
type LoginResult struct {
	TokenPair
	User User
}

// IsZero reports whether no field of the session is set.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

// Clone returns a copy that shares no memory with s.
func (s Session) Clone() Session {
	out := Session{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}

// Entries encodes the session as the persisted key/value layout.
// Absent fields are omitted.
func (s Session) Entries() (map[string]string, error) {
	entries := make(map[string]string, 3)
	if s.AccessToken != "" {
		entries[KeyAccessToken] = s.AccessToken
	}
	if s.RefreshToken != "" {
		entries[KeyRefreshToken] = s.RefreshToken
	}
	if s.User != nil {
		data, err := json.Marshal(s.User)
		if err != nil {
			return nil, fmt.Errorf("marshal cached user: %w", err)
		}
		entries[KeyUser] = string(data)
	}
	return entries, nil
}

// FromEntries decodes the persisted key/value layout. Unknown keys are ignored.
func FromEntries(entries map[string]string) (Session, error) {
	s := Session{
		AccessToken:  entries[KeyAccessToken],
		RefreshToken: entries[KeyRefreshToken],
	}
	if raw := entries[KeyUser]; raw != "" {
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			return Session{}, fmt.Errorf("parse cached user: %w", err)
		}
		s.User = &u
	}
	return s, nil
}
