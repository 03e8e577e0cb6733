package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// TokenStore is the sole owner of credential state. It is constructed once
// by the application shell and injected into every component that needs it.
//
// Every mutation is written through to the backing Store before the
// in-memory snapshot is swapped, so readers observe either the previous
// commit or the new one. Writers are serialized; readers never wait on I/O.
type TokenStore struct {
	store  Store
	logger *slog.Logger

	writeMu sync.Mutex // serializes mutations

	mu  sync.RWMutex // guards cur
	cur Session
}

// OpenTokenStore loads the persisted session from store.
func OpenTokenStore(ctx context.Context, store Store, logger *slog.Logger) (*TokenStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &TokenStore{store: store, logger: logger}
	if err := t.Reload(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the persisted session, discarding the in-memory snapshot.
func (t *TokenStore) Reload(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	s, err := t.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	t.swap(s)
	return nil
}

// AccessToken returns the current access token, if any.
func (t *TokenStore) AccessToken() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.AccessToken, t.cur.AccessToken != ""
}

// RefreshToken returns the current refresh token, if any.
func (t *TokenStore) RefreshToken() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.RefreshToken, t.cur.RefreshToken != ""
}

// User returns the cached user snapshot, if any.
func (t *TokenStore) User() (User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.cur.User == nil {
		return User{}, false
	}
	return *t.cur.User, true
}

// Snapshot returns a copy of the whole session.
func (t *TokenStore) Snapshot() Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.Clone()
}

// IsAuthenticated reports whether an access token is present. This is a
// local, optimistic check: expiry and signature are not validated. The
// 401/403-triggered refresh path is what actually enforces validity.
func (t *TokenStore) IsAuthenticated() bool {
	_, ok := t.AccessToken()
	return ok
}

// HasSession reports whether either token is present, i.e. whether an
// authenticated request has any chance of succeeding.
func (t *TokenStore) HasSession() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur.AccessToken != "" || t.cur.RefreshToken != ""
}

// SetTokens overwrites both tokens in one commit. The cached user is kept.
func (t *TokenStore) SetTokens(ctx context.Context, access, refresh string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	next := t.Snapshot()
	next.AccessToken = access
	next.RefreshToken = refresh
	return t.commit(ctx, next)
}

// RotateTokens overwrites both tokens like SetTokens, but only while the
// stored refresh token is still sent. It reports false and writes nothing
// when the session was removed or replaced in the meantime.
func (t *TokenStore) RotateTokens(ctx context.Context, sent, access, refresh string) (bool, error) {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	next := t.Snapshot()
	if sent == "" || next.RefreshToken != sent {
		return false, nil
	}
	next.AccessToken = access
	next.RefreshToken = refresh
	if err := t.commit(ctx, next); err != nil {
		return false, err
	}
	return true, nil
}

// SetSession replaces tokens and cached user in one commit.
func (t *TokenStore) SetSession(ctx context.Context, s Session) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.commit(ctx, s.Clone())
}

// RemoveTokens clears the access token, the refresh token and the cached
// user together. The in-memory session is cleared even when the durable
// clear fails, so the process never keeps acting on credentials it meant
// to drop; the storage error is still returned. Calling it on an empty
// store is a no-op.
func (t *TokenStore) RemoveTokens(ctx context.Context) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	err := t.store.Clear(ctx)
	t.swap(Session{})
	if err != nil {
		t.logger.Warn("failed to clear persisted session", "error", err)
		return fmt.Errorf("clear session: %w", err)
	}
	t.logger.Debug("session cleared")
	return nil
}

// commit persists next and then publishes it. Caller holds writeMu.
func (t *TokenStore) commit(ctx context.Context, next Session) error {
	if err := t.store.Save(ctx, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	t.swap(next)
	return nil
}

func (t *TokenStore) swap(s Session) {
	t.mu.Lock()
	t.cur = s
	t.mu.Unlock()
}
