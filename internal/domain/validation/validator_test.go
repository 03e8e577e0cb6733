package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/tinyvillage/villagehub/internal/domain/account"
	"github.com/tinyvillage/villagehub/internal/domain/item"
)

func TestStruct_Registration(t *testing.T) {
	tests := []struct {
		name      string
		in        account.Registration
		wantField string
		wantMsg   string
	}{
		{
			name: "valid",
			in:   account.Registration{Username: "alice", Password: "hunter2pass", Email: "a@x.io"},
		},
		{
			name:      "blank username",
			in:        account.Registration{Username: "   ", Password: "hunter2pass", Email: "a@x.io"},
			wantField: "Username",
			wantMsg:   "Username is required",
		},
		{
			name:      "short password",
			in:        account.Registration{Username: "alice", Password: "short", Email: "a@x.io"},
			wantField: "Password",
			wantMsg:   "Password must be at least 8 characters",
		},
		{
			name:      "email without at",
			in:        account.Registration{Username: "alice", Password: "hunter2pass", Email: "alice.example"},
			wantField: "Email",
			wantMsg:   "Email must contain @",
		},
		{
			name:      "first failing field wins",
			in:        account.Registration{},
			wantField: "Username",
			wantMsg:   "Username is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("Struct() = %v, want nil", err)
				}
				return
			}
			var ve *Error
			if !errors.As(err, &ve) {
				t.Fatalf("Struct() = %v (%T), want *Error", err, err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ve.Field, tt.wantField)
			}
			if ve.Error() != tt.wantMsg {
				t.Errorf("Message = %q, want %q", ve.Error(), tt.wantMsg)
			}
		})
	}
}

func TestStruct_PasswordChange(t *testing.T) {
	err := Struct(account.PasswordChange{
		CurrentPassword: "oldpassword",
		NewPassword:     "newpassword1",
		ConfirmPassword: "newpassword2",
	})
	if err == nil || err.Error() != "Passwords do not match" {
		t.Errorf("Struct() = %v, want Passwords do not match", err)
	}

	err = Struct(account.PasswordChange{
		CurrentPassword: "oldpassword",
		NewPassword:     "newpassword1",
		ConfirmPassword: "newpassword1",
	})
	if err != nil {
		t.Errorf("Struct() = %v, want nil", err)
	}
}

func TestStruct_Address(t *testing.T) {
	err := Struct(account.Address{Neighborhood: "Ballard", City: "Seattle", Country: "US"})
	if err == nil || err.Error() != "State is required" {
		t.Errorf("Struct() = %v, want State is required", err)
	}
}

func TestStruct_ItemDetails(t *testing.T) {
	err := Struct(item.Details{Name: "Drill", Description: "cordless", Type: "GADGET"})
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	want := "Type must be one of: BOOK, TOOL, FOOD, FURNITURE, OTHER"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	if err := Struct(item.Details{Name: "Drill", Description: "cordless", Type: item.TypeTool}); err != nil {
		t.Errorf("Struct() = %v, want nil", err)
	}
}

func TestStruct_NotAStruct(t *testing.T) {
	err := Struct("nope")
	if err == nil {
		t.Fatal("expected error")
	}
	var ve *Error
	if errors.As(err, &ve) {
		t.Errorf("expected non-validation error, got *Error %v", ve)
	}
}

func TestImages(t *testing.T) {
	if err := Images(1); err != nil {
		t.Errorf("Images(1) = %v, want nil", err)
	}
	err := Images(0)
	if err == nil || err.Error() != MsgImageRequired {
		t.Errorf("Images(0) = %v, want %q", err, MsgImageRequired)
	}
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Drill  ", "Drill"},
		{"line1\nline2\tend", "line1\nline2\tend"},
		{"null\x00byte", "nullbyte"},
		{"bell\x07", "bell"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClean_Truncates(t *testing.T) {
	long := strings.Repeat("a", MaxStringLength+10)
	if got := Clean(long); len(got) != MaxStringLength {
		t.Errorf("len = %d, want %d", len(got), MaxStringLength)
	}

	// A multi-byte rune straddling the limit is dropped, not split.
	split := strings.Repeat("a", MaxStringLength-1) + "é"
	got := Clean(split)
	if len(got) != MaxStringLength-1 {
		t.Errorf("len = %d, want %d", len(got), MaxStringLength-1)
	}
}
