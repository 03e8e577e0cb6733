package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is display-only information decoded from an access token.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token claims an expiry before now.
// A token without an exp claim never reports expired.
func (i TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// InspectToken decodes the registered claims of a JWT access token without
// verifying its signature. The result is for display only and must not be
// used to decide whether the client is authenticated.
func InspectToken(token string) (TokenInfo, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("decode access token: %w", err)
	}

	var info TokenInfo
	info.Subject = claims.Subject
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
