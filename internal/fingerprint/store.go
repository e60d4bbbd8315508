// Package fingerprint maintains the durable mapping from source paths to
// content fingerprints, used to skip compilation of unchanged files.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// storeFormatVersion identifies the on-disk layout. Older stores with a
// different version are discarded wholesale (everything rebuilds once).
const storeFormatVersion = 1

// Entry is the recorded fingerprint for one source file. Paths are
// slash-separated and relative to the scanned root.
type Entry struct {
	ContentHash string    `json:"content_hash"`
	SourceMTime time.Time `json:"source_mtime"`
	Toolchain   string    `json:"toolchain"`
	Output      string    `json:"output,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Store is the fingerprint cache. Reads may happen concurrently; all
// mutation is serialized behind an internal mutex. Flush is atomic
// (write-to-temp-then-rename), so a crash mid-flush leaves either the
// old or the new store on disk.
type Store struct {
	path      string
	toolchain string
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]Entry
	// Unknown top-level fields from a newer store format, carried through
	// load and flush untouched.
	extra map[string]json.RawMessage
	dirty bool
}

// Load opens the store at path for the given toolchain version. A
// missing file yields an empty store. A corrupt file is treated as empty
// too: every unit conservatively rebuilds that run.
func Load(path, toolchain string) *Store {
	s := &Store{
		path:      path,
		toolchain: toolchain,
		logger:    slog.Default(),
		entries:   make(map[string]Entry),
		extra:     make(map[string]json.RawMessage),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Fingerprint store unreadable, starting empty", "path", path, "error", err)
		}
		return s
	}

	if err := s.decode(data); err != nil {
		s.logger.Warn("Fingerprint store corrupt, starting empty", "path", path, "error", err)
		s.entries = make(map[string]Entry)
		s.extra = make(map[string]json.RawMessage)
	}
	return s
}

// WithLogger sets a custom logger.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Store) decode(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse store: %w", err)
	}

	var version int
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("parse store version: %w", err)
		}
	}
	if version != storeFormatVersion {
		return fmt.Errorf("unsupported store version %d", version)
	}

	if e, ok := raw["entries"]; ok {
		if err := json.Unmarshal(e, &s.entries); err != nil {
			return fmt.Errorf("parse store entries: %w", err)
		}
	}

	delete(raw, "version")
	delete(raw, "entries")
	s.extra = raw
	return nil
}

// IsStale reports whether the file at absPath (tracked under relPath)
// needs recompilation. The returned hash is the current content hash
// when one had to be computed, reusable by Record; it is empty when the
// mtime fast path concluded without hashing.
//
// A unit is stale when no record exists, the recorded toolchain differs,
// or the content hash differs. An unchanged mtime skips hashing
// entirely; a changed mtime forces a hash comparison so that
// touch-without-edit does not trigger a rebuild.
func (s *Store) IsStale(relPath, absPath string, mtime time.Time) (bool, string, error) {
	s.mu.RLock()
	entry, ok := s.entries[relPath]
	s.mu.RUnlock()

	if !ok || entry.Toolchain != s.toolchain || entry.ContentHash == "" {
		return true, "", nil
	}

	if entry.SourceMTime.Equal(mtime) {
		return false, "", nil
	}

	hash, err := HashFile(absPath)
	if err != nil {
		return true, "", fmt.Errorf("hash %s: %w", absPath, err)
	}
	if hash != entry.ContentHash {
		return true, hash, nil
	}

	// Content identical, only the timestamp moved. Refresh the stored
	// mtime so the next run takes the fast path again.
	s.mu.Lock()
	entry.SourceMTime = mtime
	s.entries[relPath] = entry
	s.dirty = true
	s.mu.Unlock()
	return false, hash, nil
}

// Record stores a successful build result for relPath. Failed builds are
// never recorded, which keeps the unit eligible for retry next run.
func (s *Store) Record(relPath, contentHash, output string, mtime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[relPath] = Entry{
		ContentHash: contentHash,
		SourceMTime: mtime,
		Toolchain:   s.toolchain,
		Output:      output,
		RecordedAt:  time.Now().UTC(),
	}
	s.dirty = true
}

// Forget drops the entry for relPath, if any.
func (s *Store) Forget(relPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[relPath]; ok {
		delete(s.entries, relPath)
		s.dirty = true
	}
}

// Get returns the recorded entry for relPath.
func (s *Store) Get(relPath string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[relPath]
	return e, ok
}

// Len returns the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Flush writes the store to disk atomically. It is a no-op when nothing
// changed since the last flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	payload := make(map[string]any, len(s.extra)+2)
	for k, v := range s.extra {
		payload[k] = v
	}
	payload["version"] = storeFormatVersion
	payload["entries"] = s.entries

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fingerprint store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace store file: %w", err)
	}

	s.dirty = false
	s.logger.Debug("Fingerprint store flushed", "path", s.path, "entries", len(s.entries))
	return nil
}

// HashFile computes the hex-encoded SHA-256 digest of the file contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only file

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the hex-encoded SHA-256 digest of b.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
