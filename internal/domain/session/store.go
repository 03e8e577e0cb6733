package session

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Store provides durable session persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: file (default), sqlite, redis, in-memory (test).
//
// Save and Clear must be atomic: a concurrent or subsequent Load observes
// either the previous session or the new one, never a mix of the two.
type Store interface {
	// Load returns the persisted session. A missing session is the zero
	// Session and a nil error.
	Load(ctx context.Context) (Session, error)

	// Save replaces the persisted session.
	Save(ctx context.Context, s Session) error

	// Clear removes every persisted entry. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// Namespace derives the default storage namespace for an API base URL, so
// sessions for different servers sharing one sqlite file or redis do not collide.
func Namespace(baseURL string) string {
	normalized := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	var buf [8]byte
	sum := xxhash.Sum64String(normalized)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(sum)
		sum >>= 8
	}
	return hex.EncodeToString(buf[:])
}
