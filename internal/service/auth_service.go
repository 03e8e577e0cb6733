package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinyvillage/villagehub/internal/adapter/outbound/hubapi"
	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/domain/validation"
	"github.com/tinyvillage/villagehub/internal/port/inbound"
	"github.com/tinyvillage/villagehub/internal/port/outbound"
)

// AuthService runs the login, registration and logout flows and reports
// the local session state.
type AuthService struct {
	api    outbound.AuthAPI
	gw     inbound.Requester
	tokens *session.TokenStore
	logger *slog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(api outbound.AuthAPI, gw inbound.Requester, tokens *session.TokenStore, logger *slog.Logger) *AuthService {
	return &AuthService{
		api:    api,
		gw:     gw,
		tokens: tokens,
		logger: logger,
	}
}

// Login validates creds, exchanges them for tokens and replaces the stored
// session with the result.
func (s *AuthService) Login(ctx context.Context, creds account.Credentials) (session.User, error) {
	creds.Username = validation.Clean(creds.Username)
	if err := validation.Struct(creds); err != nil {
		return session.User{}, err
	}

	res, err := s.api.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return session.User{}, err
	}

	u := res.User
	if err := s.tokens.SetSession(ctx, session.Session{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		User:         &u,
	}); err != nil {
		return session.User{}, fmt.Errorf("save session: %w", err)
	}
	s.logger.Info("logged in", "username", u.Username, "user_id", u.ID)
	return u, nil
}

// Register validates reg and creates the account. It does not log in.
func (s *AuthService) Register(ctx context.Context, reg account.Registration) (string, error) {
	reg.Username = validation.Clean(reg.Username)
	reg.Email = validation.Clean(reg.Email)
	reg.Neighborhood = validation.Clean(reg.Neighborhood)
	reg.City = validation.Clean(reg.City)
	reg.State = validation.Clean(reg.State)
	reg.Country = validation.Clean(reg.Country)
	if err := validation.Struct(reg); err != nil {
		return "", err
	}
	return s.api.Register(ctx, reg)
}

// Logout forgets the local session. The server is not contacted.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.tokens.RemoveTokens(ctx)
}

// LogoutAllDevices asks the server to revoke every session of the user,
// then forgets the local one.
func (s *AuthService) LogoutAllDevices(ctx context.Context, password string) error {
	body := account.LogoutAllDevices{Password: password}
	if err := validation.Struct(body); err != nil {
		return err
	}
	if !s.tokens.HasSession() {
		return session.ErrNotLoggedIn
	}

	resp, err := s.gw.Do(ctx, http.MethodPost, "/auth/logout-all-devices", body)
	if err != nil {
		return err
	}
	if err := readResult(resp, nil); err != nil {
		return fmt.Errorf("logout all devices: %w", err)
	}
	s.logger.Info("logged out from all devices")
	return s.tokens.RemoveTokens(ctx)
}

// Status is the local view of the session.
type Status struct {
	// Authenticated is the optimistic check: an access token is stored.
	Authenticated bool `json:"authenticated" yaml:"authenticated"`
	// Refreshable is true when a refresh token is stored.
	Refreshable bool          `json:"refreshable" yaml:"refreshable"`
	User        *session.User `json:"user,omitempty" yaml:"user,omitempty"`
	// ExpiresAt is decoded from the access token without verification.
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool       `json:"expired" yaml:"expired"`
}

// Status reports the stored session as of now.
func (s *AuthService) Status(now time.Time) Status {
	snap := s.tokens.Snapshot()
	st := Status{
		Authenticated: snap.AccessToken != "",
		Refreshable:   snap.RefreshToken != "",
		User:          snap.User,
	}
	if snap.AccessToken == "" {
		return st
	}
	info, err := session.InspectToken(snap.AccessToken)
	if err != nil {
		s.logger.Debug("access token is not a readable JWT", "error", err)
		return st
	}
	if !info.ExpiresAt.IsZero() {
		exp := info.ExpiresAt
		st.ExpiresAt = &exp
		st.Expired = info.Expired(now)
	}
	return st
}

// readResult checks resp and decodes its JSON body into v when v is
// non-nil. The body is always closed.
func readResult(resp *http.Response, v any) error {
	defer hubapi.Drain(resp)
	if err := hubapi.CheckResponse(resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	return hubapi.DecodeJSON(resp, v)
}
