// Package recordstore provides key/value persistence for small JSON documents.
//
// Each well-known key maps to one JSON file inside the data directory. Writes
// replace the whole document atomically (temp file + rename). Reads that hit a
// missing or corrupt file fall back to a caller-supplied default instead of
// failing: stored documents are user data on a personal machine and a torn or
// hand-edited file must never take the app down.
package recordstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Well-known record keys, one per logical collection. These are part of the
// on-disk format and must not change without a migration.
const (
	KeySettings = "gift_settings_v1"
	KeyJar      = "gift_jar_v1"
	KeyMicro    = "gift_micro_v1"
	KeyMuseum   = "gift_museum_v1"
	KeyJournal  = "gift_journal_v1"
	KeyMessages = "gift_messages_v1"
)

// Keys lists every well-known record key.
var Keys = []string{KeySettings, KeyJar, KeyMicro, KeyMuseum, KeyJournal, KeyMessages}

// Store persists JSON documents keyed by well-known strings.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for user data directories
		return nil, fmt.Errorf("failed to create record directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string {
	return s.dir
}

// Get unmarshals the document stored under key into v. A missing or corrupt
// record returns false and the caller supplies defaults; v may be partially
// populated after a failed unmarshal, so callers must not keep it on false.
func (s *Store) Get(key string, v any) bool {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Unreadable record, using defaults", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("Corrupt record, using defaults", "key", key, "err", err)
		return false
	}
	return true
}

// Set serializes v and overwrites the document stored under key. The write is
// atomic from the reader's perspective: data lands in a temp file first and is
// renamed into place.
func (s *Store) Set(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp record file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write record %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp record file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace record %s: %w", key, err)
	}
	return nil
}

// Delete removes the document stored under key. Missing records are fine.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record %s: %w", key, err)
	}
	return nil
}

// FileName returns the file name used for key, relative to the store
// directory. Useful for history commits.
func FileName(key string) string {
	return key + ".json"
}

func (s *Store) path(key string) string {
	// Keys are fixed constants, but keep path traversal out anyway.
	key = strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, FileName(key))
}
