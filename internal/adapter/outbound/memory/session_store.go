// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

// MemorySessionStore implements session.Store with an in-memory entry map.
// Thread-safe for concurrent access. Used by --ephemeral runs and tests;
// nothing survives the process.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]string

	saveErr  error
	clearErr error
	saves    int
	clears   int
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]string)}
}

// Load decodes the stored entries.
func (s *MemorySessionStore) Load(ctx context.Context) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.FromEntries(s.entries)
}

// Save replaces all entries with the encoding of sess.
func (s *MemorySessionStore) Save(ctx context.Context, sess session.Session) error {
	entries, err := sess.Entries()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.entries = entries
	s.saves++
	return nil
}

// Clear drops every entry.
func (s *MemorySessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clearErr != nil {
		return s.clearErr
	}
	s.entries = make(map[string]string)
	s.clears++
	return nil
}

// Entries returns a copy of the raw persisted entries.
func (s *MemorySessionStore) Entries() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// SetEntry writes one raw entry, bypassing Save. Tests use it to stage
// partial or corrupt layouts.
func (s *MemorySessionStore) SetEntry(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
}

// FailSaves makes every subsequent Save return err. Pass nil to restore.
func (s *MemorySessionStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// FailClears makes every subsequent Clear return err. Pass nil to restore.
func (s *MemorySessionStore) FailClears(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearErr = err
}

// Saves returns the number of successful Save calls.
func (s *MemorySessionStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

// Clears returns the number of successful Clear calls.
func (s *MemorySessionStore) Clears() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clears
}

// Compile-time interface verification.
var _ session.Store = (*MemorySessionStore)(nil)
