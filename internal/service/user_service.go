package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinyvillage/villagehub/internal/adapter/outbound/hubapi"
	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/session"
	"github.com/tinyvillage/villagehub/internal/domain/validation"
	"github.com/tinyvillage/villagehub/internal/port/inbound"
)

// PasswordChangeError carries the user-facing reason a password change was refused.
type PasswordChangeError struct {
	Message string
	Cause   error
}

func (e *PasswordChangeError) Error() string { return e.Message }

func (e *PasswordChangeError) Unwrap() error { return e.Cause }

// UserService manages the caller's account settings.
type UserService struct {
	gw     inbound.Requester
	tokens *session.TokenStore
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(gw inbound.Requester, tokens *session.TokenStore, logger *slog.Logger) *UserService {
	return &UserService{gw: gw, tokens: tokens, logger: logger}
}

// UpdateAddress replaces the caller's address.
func (s *UserService) UpdateAddress(ctx context.Context, addr account.Address) error {
	addr.Neighborhood = validation.Clean(addr.Neighborhood)
	addr.City = validation.Clean(addr.City)
	addr.State = validation.Clean(addr.State)
	addr.Country = validation.Clean(addr.Country)
	if err := validation.Struct(addr); err != nil {
		return err
	}
	resp, err := s.gw.Do(ctx, http.MethodPut, "/users/address", addr)
	if err != nil {
		return err
	}
	if err := readResult(resp, nil); err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	return nil
}

// ChangePassword changes the caller's password. The server revokes every
// session on success, so the local one is forgotten too.
func (s *UserService) ChangePassword(ctx context.Context, pc account.PasswordChange) error {
	if err := validation.Struct(pc); err != nil {
		return err
	}
	resp, err := s.gw.Do(ctx, http.MethodPut, "/users/password", pc)
	if err != nil {
		return err
	}
	if err := readResult(resp, nil); err != nil {
		return &PasswordChangeError{Message: passwordChangeMessage(err), Cause: err}
	}
	s.logger.Info("password changed, session cleared")
	return s.tokens.RemoveTokens(ctx)
}

func passwordChangeMessage(err error) string {
	var apiErr *hubapi.APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.FieldErrorText(); msg != "" {
			return msg
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return "Failed to change password"
}
