package wheel

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewestWheelPicksMostRecent(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "pkg-1.0-py3-none-any.whl")
	recent := filepath.Join(dir, "pkg-1.1-py3-none-any.whl")
	require.NoError(t, os.WriteFile(old, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(recent, []byte("b"), 0o644))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := NewestWheel(dir)
	require.NoError(t, err)
	assert.Equal(t, recent, got)
}

func TestNewestWheelIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg-1.0.tar.gz"), []byte("a"), 0o644))

	_, err := NewestWheel(dir)
	assert.ErrorIs(t, err, ErrNoWheelProduced)
}

func TestNewestWheelMissingDir(t *testing.T) {
	_, err := NewestWheel(filepath.Join(t.TempDir(), "dist"))
	assert.Error(t, err)
}

func TestNewBuilderRejectsMissingInterpreter(t *testing.T) {
	_, err := NewBuilder("definitely-not-a-python-binary")
	assert.ErrorIs(t, err, ErrPythonNotFound)
}

func TestInstallRejectsMissingWheel(t *testing.T) {
	inst := &PipInstaller{python: "python3"}
	err := inst.Install(context.Background(), filepath.Join(t.TempDir(), "gone.whl"))
	assert.Error(t, err)
}

func TestLocateLibraryRejectsBadNames(t *testing.T) {
	for _, name := range []string{"", "foo; import os", "a.b", "pkg name"} {
		_, err := LocateLibrary(context.Background(), "python3", name)
		assert.Error(t, err, "name %q must be rejected", name)
	}
}
