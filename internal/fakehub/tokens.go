package fakehub

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errTokenRevoked = errors.New("token revoked")

// accessClaims are the claims of an issued access token. Epoch ties the
// token to the server-wide generation (ExpireAccessTokens) and Gen to the
// user's generation (logout-all-devices, password change).
type accessClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"uid"`
	Epoch  int64 `json:"epoch"`
	Gen    int64 `json:"gen"`
}

// issueAccess signs an access token for u. Caller holds s.mu.
func (s *Server) issueAccess(u *user) (string, error) {
	now := s.now()
	s.seq++
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Username,
			Issuer:    "fakehub",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			ID:        fmt.Sprintf("%d", s.seq),
		},
		UserID: u.ID,
		Epoch:  s.epoch,
		Gen:    u.gen,
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// issueRefresh mints an opaque single-use refresh token. Caller holds s.mu.
func (s *Server) issueRefresh(u *user) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	tok := "rt_" + hex.EncodeToString(b[:])
	s.refresh[tok] = u.Username
	return tok
}

// verifyAccess validates a bearer token and returns its user. Caller holds s.mu.
func (s *Server) verifyAccess(raw string) (*user, error) {
	var claims accessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	u, ok := s.users[claims.Subject]
	if !ok {
		return nil, errors.New("unknown subject")
	}
	if claims.Epoch != s.epoch || claims.Gen != u.gen {
		return nil, errTokenRevoked
	}
	return u, nil
}

// revokeUser invalidates every access and refresh token of u. Caller holds s.mu.
func (s *Server) revokeUser(u *user) {
	u.gen++
	for tok, name := range s.refresh {
		if name == u.Username {
			delete(s.refresh, tok)
		}
	}
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}
