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

	"github.com/tinyvillage/villagehub/internal/domain/session"
)

// FileSessionStore persists the session in a single JSON file.
// It provides atomic writes (write-tmp-then-rename), automatic backups,
// and file locking (flock for cross-process, mutex for in-process).
type FileSessionStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileSessionStore creates a new FileSessionStore for the given file path.
func NewFileSessionStore(path string, logger *slog.Logger) *FileSessionStore {
	return &FileSessionStore{
		path:   path,
		logger: logger,
	}
}

// Load reads and parses the session file.
// If the file does not exist, it returns the zero Session.
// If the file contains invalid JSON, it returns an error.
// Warns if the existing file has permissions more open than 0600.
func (s *FileSessionStore) Load(ctx context.Context) (session.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debug("session file not found, starting unauthenticated", "path", s.path)
			return session.Session{}, nil
		}
		return session.Session{}, fmt.Errorf("read session file: %w", err)
	}

	// Skip on Windows where Unix file permission bits are not supported.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			mode := info.Mode().Perm()
			if mode&0077 != 0 { // group or other has access
				s.logger.Warn("session file has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return session.Session{}, fmt.Errorf("parse session file: %w", err)
	}

	return session.FromEntries(f.Entries)
}

// Save writes the session to disk atomically.
//
// The write sequence is:
//  1. Acquire in-process mutex
//  2. Acquire flock on path+".lock"
//  3. Copy current file to path+".bak" (ignored if no current file)
//  4. Marshal entries as indented JSON
//  5. Write to path+".tmp" with 0600 permissions
//  6. Fsync the temp file
//  7. Rename path+".tmp" -> path
//  8. Release flock
//  9. Release mutex
func (s *FileSessionStore) Save(ctx context.Context, sess session.Session) error {
	entries, err := sess.Entries()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(sessionFile{Version: fileVersion, Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	data = append(data, '\n')

	return s.withLock(func() error {
		// Create backup of current file (ignore error if file doesn't exist).
		if currentData, readErr := os.ReadFile(s.path); readErr == nil {
			bakPath := s.path + ".bak"
			if writeErr := os.WriteFile(bakPath, currentData, 0600); writeErr != nil {
				s.logger.Warn("failed to create backup", "error", writeErr)
			}
		}

		if err := s.writeAtomic(data); err != nil {
			return err
		}

		// Explicitly ensure 0600 permissions after rename.
		if err := os.Chmod(s.path, 0600); err != nil {
			s.logger.Warn("failed to set permissions on session file", "error", err)
		}

		s.logger.Debug("session saved", "path", s.path)
		return nil
	})
}

// Clear removes the session file and its backup. The backup holds tokens
// too, so leaving it behind would defeat logout.
func (s *FileSessionStore) Clear(ctx context.Context) error {
	return s.withLock(func() error {
		for _, p := range []string{s.path, s.path + ".bak"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove %s: %w", p, err)
			}
		}
		s.logger.Debug("session file removed", "path", s.path)
		return nil
	})
}

// withLock runs fn holding both the in-process mutex and the cross-process
// flock on path+".lock".
func (s *FileSessionStore) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	return fn()
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it
// over the target path. On any error the temp file is cleaned up.
func (s *FileSessionStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	// cleanup closes and removes the temp file on error.
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to session: %w", err)
	}
	return nil
}

// Exists returns true if the session file exists on disk.
func (s *FileSessionStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Path returns the configured file path.
func (s *FileSessionStore) Path() string {
	return s.path
}

// Compile-time interface verification.
var _ session.Store = (*FileSessionStore)(nil)
