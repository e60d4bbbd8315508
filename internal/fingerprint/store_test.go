package fingerprint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, content string) (abs string, mtime time.Time) {
	t.Helper()
	abs = filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	info, err := os.Stat(abs)
	require.NoError(t, err)
	return abs, info.ModTime()
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "absent.json"), "cython-3.0")
	assert.Zero(t, s.Len())
}

func TestLoadCorruptFileIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := Load(path, "cython-3.0")
	assert.Zero(t, s.Len())
}

func TestStalenessLifecycle(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.json")
	abs, mtime := writeSource(t, dir, "a.py", "print('hi')\n")

	s := Load(storePath, "cython-3.0")

	// Unknown file is stale.
	stale, _, err := s.IsStale("a.py", abs, mtime)
	require.NoError(t, err)
	assert.True(t, stale)

	hash, err := HashFile(abs)
	require.NoError(t, err)
	s.Record("a.py", hash, "a.so", mtime)

	// Recorded and unchanged: mtime fast path, no hashing.
	stale, h, err := s.IsStale("a.py", abs, mtime)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Empty(t, h)

	// Touch without edit: hashing is mandatory but verdict is fresh.
	touched := mtime.Add(time.Hour)
	require.NoError(t, os.Chtimes(abs, touched, touched))
	stale, h, err = s.IsStale("a.py", abs, touched)
	require.NoError(t, err)
	assert.False(t, stale)
	assert.Equal(t, hash, h)

	// Content change makes it stale again.
	require.NoError(t, os.WriteFile(abs, []byte("print('bye')\n"), 0o644))
	info, err := os.Stat(abs)
	require.NoError(t, err)
	stale, h, err = s.IsStale("a.py", abs, info.ModTime())
	require.NoError(t, err)
	assert.True(t, stale)
	assert.NotEqual(t, hash, h)
	assert.NotEmpty(t, h)
}

func TestToolchainChangeForcesStaleness(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.json")
	abs, mtime := writeSource(t, dir, "a.py", "x = 1\n")

	s := Load(storePath, "cython-3.0")
	hash, err := HashFile(abs)
	require.NoError(t, err)
	s.Record("a.py", hash, "", mtime)
	require.NoError(t, s.Flush())

	upgraded := Load(storePath, "cython-3.1")
	stale, _, err := upgraded.IsStale("a.py", abs, mtime)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestFlushAndReload(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.json")
	abs, mtime := writeSource(t, dir, "a.py", "x = 1\n")

	s := Load(storePath, "cython-3.0")
	hash, err := HashFile(abs)
	require.NoError(t, err)
	s.Record("a.py", hash, "a.so", mtime)
	require.NoError(t, s.Flush())

	reloaded := Load(storePath, "cython-3.0")
	entry, ok := reloaded.Get("a.py")
	require.True(t, ok)
	assert.Equal(t, hash, entry.ContentHash)
	assert.Equal(t, "a.so", entry.Output)

	stale, _, err := reloaded.IsStale("a.py", abs, mtime)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestFlushIsNoopWhenClean(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "store.json")
	s := Load(storePath, "cython-3.0")
	require.NoError(t, s.Flush())

	_, err := os.Stat(storePath)
	assert.True(t, os.IsNotExist(err), "clean store should not be written")
}

func TestUnknownFieldsSurviveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.json")

	original := map[string]any{
		"version":      1,
		"entries":      map[string]any{},
		"future_field": map[string]any{"keep": "me"},
	}
	data, err := json.Marshal(original)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(storePath, data, 0o644))

	s := Load(storePath, "cython-3.0")
	s.Record("a.py", "deadbeef", "", time.Now())
	require.NoError(t, s.Flush())

	raw, err := os.ReadFile(storePath)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Contains(t, decoded, "future_field")
	assert.JSONEq(t, `{"keep":"me"}`, string(decoded["future_field"]))
}

func TestForget(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "store.json"), "cython-3.0")
	s.Record("a.py", "hash", "", time.Now())
	require.Equal(t, 1, s.Len())
	s.Forget("a.py")
	assert.Zero(t, s.Len())
}

func TestHashBytesMatchesHashFile(t *testing.T) {
	dir := t.TempDir()
	abs, _ := writeSource(t, dir, "a.py", "content\n")
	fromFile, err := HashFile(abs)
	require.NoError(t, err)
	assert.Equal(t, HashBytes([]byte("content\n")), fromFile)
}
