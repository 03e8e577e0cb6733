// Package redis provides a session.Store backed by Redis, for hosts that
// share one session between several machines or containers.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

const keyPrefix = "villagehub"

var entryKeys = []string{session.KeyAccessToken, session.KeyRefreshToken, session.KeyUser}

// SessionStore implements session.Store with one string key per entry.
type SessionStore struct {
	cli       *redis.Client
	namespace string
	logger    *slog.Logger
}

// New parses url, connects and pings the server.
func New(ctx context.Context, url, namespace string, logger *slog.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Debug("redis session store connected", "addr", opts.Addr, "namespace", namespace)
	return &SessionStore{cli: cli, namespace: namespace, logger: logger}, nil
}

// Close closes the client.
func (s *SessionStore) Close() error {
	return s.cli.Close()
}

// Key returns the redis key holding entry in namespace.
func Key(namespace, entry string) string {
	return keyPrefix + ":" + namespace + ":" + entry
}

func (s *SessionStore) keys() []string {
	out := make([]string, len(entryKeys))
	for i, e := range entryKeys {
		out[i] = Key(s.namespace, e)
	}
	return out
}

// Load fetches all entries with one MGET.
func (s *SessionStore) Load(ctx context.Context) (session.Session, error) {
	vals, err := s.cli.MGet(ctx, s.keys()...).Result()
	if err != nil {
		return session.Session{}, fmt.Errorf("redis mget: %w", err)
	}
	entries := make(map[string]string, len(entryKeys))
	for i, v := range vals {
		if str, ok := v.(string); ok {
			entries[entryKeys[i]] = str
		}
	}
	return session.FromEntries(entries)
}

// Save replaces all entries inside MULTI/EXEC.
func (s *SessionStore) Save(ctx context.Context, sess session.Session) error {
	entries, err := sess.Entries()
	if err != nil {
		return err
	}
	_, err = s.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keys()...)
		for k, v := range entries {
			pipe.Set(ctx, Key(s.namespace, k), v, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Clear deletes all entries.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.cli.Del(ctx, s.keys()...).Err(); err != nil {
		return fmt.Errorf("redis clear session: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ session.Store = (*SessionStore)(nil)
