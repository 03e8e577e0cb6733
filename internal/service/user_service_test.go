package service

import (
	"context"
	"errors"
	"testing"

	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/validation"
)

func newUserService(env *testEnv) *UserService {
	return NewUserService(env.gw, env.tokens, env.logger)
}

func TestUserService_UpdateAddress(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "alice")
	svc := newUserService(env)

	addr := account.Address{Neighborhood: "Old Town", City: "Springfield", State: "IL", Country: "US"}
	if err := svc.UpdateAddress(context.Background(), addr); err != nil {
		t.Fatalf("UpdateAddress() error: %v", err)
	}
	got := env.hub.Address("alice")
	if got["city"] != "Springfield" || got["neighborhood"] != "Old Town" {
		t.Errorf("server address = %v", got)
	}

	err := svc.UpdateAddress(context.Background(), account.Address{City: "x", State: "y", Country: "z"})
	var verr *validation.Error
	if !errors.As(err, &verr) || verr.Message != "Neighborhood is required" {
		t.Errorf("missing neighborhood error = %v", err)
	}
}

func TestUserService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "alice")
	svc := newUserService(env)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, account.PasswordChange{
		CurrentPassword: "not-it-at-all",
		NewPassword:     "brandnewpass",
		ConfirmPassword: "brandnewpass",
	})
	var pcErr *PasswordChangeError
	if !errors.As(err, &pcErr) || pcErr.Message != "Current password is incorrect" {
		t.Fatalf("wrong current password error = %v", err)
	}
	if !env.tokens.IsAuthenticated() {
		t.Fatal("session cleared after refused change")
	}

	err = svc.ChangePassword(ctx, account.PasswordChange{
		CurrentPassword: "password123",
		NewPassword:     "brandnewpass",
		ConfirmPassword: "different1",
	})
	var verr *validation.Error
	if !errors.As(err, &verr) || verr.Message != "Passwords do not match" {
		t.Errorf("mismatch error = %v", err)
	}

	err = svc.ChangePassword(ctx, account.PasswordChange{
		CurrentPassword: "password123",
		NewPassword:     "brandnewpass",
		ConfirmPassword: "brandnewpass",
	})
	if err != nil {
		t.Fatalf("ChangePassword() error: %v", err)
	}
	if env.tokens.HasSession() {
		t.Error("session survived a password change")
	}
}

func TestPasswordChangeMessage(t *testing.T) {
	if got := passwordChangeMessage(errors.New("boom")); got != "Failed to change password" {
		t.Errorf("passwordChangeMessage() = %q", got)
	}
}
