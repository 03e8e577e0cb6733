package state

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func aliceSession() session.Session {
	return session.Session{
		AccessToken:  "A1",
		RefreshToken: "R1",
		User:         &session.User{ID: 7, Username: "alice"},
	}
}

// ---------------------------------------------------------------------------
// Load tests
// ---------------------------------------------------------------------------

func TestLoad_NoFile_ReturnsZeroSession(t *testing.T) {
	s := NewFileSessionStore(filepath.Join(t.TempDir(), "session.json"), testLogger())

	sess, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if !sess.IsZero() {
		t.Errorf("expected zero session, got %+v", sess)
	}
}

func TestLoad_ValidFile_ReturnsParsedSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	raw := `{
  "version": "1",
  "entries": {
    "accessToken": "A1",
    "refreshToken": "R1",
    "user": "{\"id\":7,\"username\":\"alice\"}"
  }
}`
	if err := os.WriteFile(path, []byte(raw), 0600); err != nil {
		t.Fatalf("failed to write test session: %v", err)
	}

	sess, err := NewFileSessionStore(path, testLogger()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if sess.AccessToken != "A1" || sess.RefreshToken != "R1" {
		t.Errorf("tokens = (%q, %q), want (A1, R1)", sess.AccessToken, sess.RefreshToken)
	}
	if sess.User == nil || sess.User.ID != 7 || sess.User.Username != "alice" {
		t.Errorf("user = %+v, want {7 alice}", sess.User)
	}
}

func TestLoad_CorruptFile_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0600); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	if _, err := NewFileSessionStore(path, testLogger()).Load(context.Background()); err == nil {
		t.Fatal("expected error for corrupt file, got nil")
	}
}

// ---------------------------------------------------------------------------
// Save tests
// ---------------------------------------------------------------------------

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())
	ctx := context.Background()

	if err := s.Save(ctx, aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.AccessToken != "A1" || loaded.RefreshToken != "R1" {
		t.Errorf("tokens = (%q, %q), want (A1, R1)", loaded.AccessToken, loaded.RefreshToken)
	}
	if loaded.User == nil || loaded.User.Username != "alice" {
		t.Errorf("user = %+v, want alice", loaded.User)
	}
}

func TestSave_PersistsThreeStringEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())

	if err := s.Save(context.Background(), aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.Version != "1" {
		t.Errorf("Version = %q, want 1", f.Version)
	}
	if len(f.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %v", f.Entries)
	}
	if f.Entries[session.KeyUser] != `{"id":7,"username":"alice"}` {
		t.Errorf("user entry = %q", f.Entries[session.KeyUser])
	}
}

func TestSave_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())

	if err := s.Save(context.Background(), aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %04o, want 0600", perm)
	}
}

func TestSave_CreatesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())
	ctx := context.Background()

	if err := s.Save(ctx, aliceSession()); err != nil {
		t.Fatalf("first Save() error: %v", err)
	}
	if err := s.Save(ctx, session.Session{AccessToken: "A2", RefreshToken: "R2"}); err != nil {
		t.Fatalf("second Save() error: %v", err)
	}

	bak, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	var f sessionFile
	if err := json.Unmarshal(bak, &f); err != nil {
		t.Fatalf("unmarshal backup: %v", err)
	}
	if f.Entries[session.KeyAccessToken] != "A1" {
		t.Errorf("backup access token = %q, want A1", f.Entries[session.KeyAccessToken])
	}
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())

	if err := s.Save(context.Background(), aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected no temp file, stat err = %v", err)
	}
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "session.json")
	s := NewFileSessionStore(path, testLogger())

	if err := s.Save(context.Background(), aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if !s.Exists() {
		t.Error("expected session file to exist")
	}
}

func TestSave_ConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sess := session.Session{
				AccessToken:  fmt.Sprintf("A%d", n),
				RefreshToken: fmt.Sprintf("R%d", n),
			}
			if err := s.Save(ctx, sess); err != nil {
				t.Errorf("Save() #%d error: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after concurrent saves: %v", err)
	}
	if loaded.AccessToken[1:] != loaded.RefreshToken[1:] {
		t.Errorf("torn write: %q / %q", loaded.AccessToken, loaded.RefreshToken)
	}
}

// ---------------------------------------------------------------------------
// Clear tests
// ---------------------------------------------------------------------------

func TestClear_RemovesFileAndBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	s := NewFileSessionStore(path, testLogger())
	ctx := context.Background()

	if err := s.Save(ctx, aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Save(ctx, aliceSession()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	for _, p := range []string{path, path + ".bak"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed, stat err = %v", p, err)
		}
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after Clear: %v", err)
	}
	if !loaded.IsZero() {
		t.Errorf("expected zero session after Clear, got %+v", loaded)
	}
}

func TestClear_Idempotent(t *testing.T) {
	s := NewFileSessionStore(filepath.Join(t.TempDir(), "session.json"), testLogger())
	ctx := context.Background()

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("first Clear() error: %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear() error: %v", err)
	}
}

func TestFileSessionStore_WithTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	ts, err := session.OpenTokenStore(ctx, NewFileSessionStore(path, testLogger()), testLogger())
	if err != nil {
		t.Fatalf("OpenTokenStore() error: %v", err)
	}
	if err := ts.SetTokens(ctx, "A1", "R1"); err != nil {
		t.Fatalf("SetTokens() error: %v", err)
	}

	// A second process opening the same file sees the same session.
	reopened, err := session.OpenTokenStore(ctx, NewFileSessionStore(path, testLogger()), testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reopened.IsAuthenticated() {
		t.Error("expected reopened store to be authenticated")
	}
	if tok, _ := reopened.RefreshToken(); tok != "R1" {
		t.Errorf("RefreshToken = %q, want R1", tok)
	}
}
