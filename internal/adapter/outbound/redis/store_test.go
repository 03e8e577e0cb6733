package redis

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

func TestKey(t *testing.T) {
	if got := Key("abc", session.KeyAccessToken); got != "villagehub:abc:accessToken" {
		t.Errorf("Key() = %q", got)
	}
}

func TestNew_InvalidURL(t *testing.T) {
	if _, err := New(context.Background(), "not-a-redis-url", "ns", nil); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

// openLive connects to VILLAGEHUB_TEST_REDIS_URL under a fresh namespace.
func openLive(t *testing.T) *SessionStore {
	t.Helper()
	url := os.Getenv("VILLAGEHUB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("VILLAGEHUB_TEST_REDIS_URL not set")
	}
	s, err := New(context.Background(), url, "test-"+uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})
	return s
}

func TestSessionStore_Live_RoundTrip(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()

	in := session.Session{AccessToken: "A1", RefreshToken: "R1", User: &session.User{ID: 7, Username: "alice"}}
	if err := s.Save(ctx, in); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.AccessToken != "A1" || got.RefreshToken != "R1" || got.User == nil || got.User.Username != "alice" {
		t.Errorf("Load() = %+v", got)
	}

	if err := s.Save(ctx, session.Session{AccessToken: "A2"}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, _ = s.Load(ctx)
	if got.RefreshToken != "" || got.User != nil {
		t.Errorf("stale entries survived Save: %+v", got)
	}
}

func TestSessionStore_Live_Clear(t *testing.T) {
	s := openLive(t)
	ctx := context.Background()

	_ = s.Save(ctx, session.Session{AccessToken: "A1", RefreshToken: "R1"})
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Load() after Clear = %+v", got)
	}
}
