package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cybuild/internal/pathspec"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func relPaths(units []SourceUnit) []string {
	paths := make([]string, len(units))
	for i, u := range units {
		paths[i] = u.RelPath
	}
	return paths
}

func TestScanFindsPythonFilesSorted(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"zeta.py":        "z = 1\n",
		"alpha.py":       "a = 1\n",
		"pkg/beta.py":    "b = 1\n",
		"pkg/data.txt":   "not python\n",
		"pkg/sub/gam.py": "g = 1\n",
	})

	res, err := New(root, nil).Scan(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha.py", "pkg/beta.py", "pkg/sub/gam.py", "zeta.py"}, relPaths(res.Units))
	assert.Empty(t, res.Warnings)
}

func TestScanAppliesExclusions(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"keep.py":          "k = 1\n",
		"a.tmp.py":         "t = 1\n",
		"build/gen.py":     "g = 1\n",
		"build/keep.py":    "g = 2\n",
		"nested/build2.py": "n = 1\n",
	})

	matcher, err := pathspec.Compile([]string{"build/", "!build/keep.py", "*.tmp.py"})
	require.NoError(t, err)

	res, err := New(root, matcher).Scan(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"build/keep.py", "keep.py", "nested/build2.py"}, relPaths(res.Units))
}

func TestScanDeterministicAcrossRuns(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"m", "a", "z", "k"} {
		files[name+"/mod.py"] = "x = 1\n"
		files[name+"/other.py"] = "y = 1\n"
	}
	writeTree(t, root, files)

	first, err := New(root, nil).WithWorkers(4).Scan(t.Context())
	require.NoError(t, err)
	for range 5 {
		again, err := New(root, nil).WithWorkers(4).Scan(t.Context())
		require.NoError(t, err)
		assert.Equal(t, relPaths(first.Units), relPaths(again.Units))
	}
}

func TestScanMissingRootFails(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), nil).Scan(t.Context())
	assert.Error(t, err)
}

func TestScanUnreadableSubtreeIsWarning(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are ignored for root")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok.py":         "x = 1\n",
		"locked/hid.py": "y = 1\n",
	})
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	res, err := New(root, nil).Scan(t.Context())
	require.NoError(t, err)

	assert.Equal(t, []string{"ok.py"}, relPaths(res.Units))
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "locked", res.Warnings[0].Path)
}

func TestScanRecordsSizeAndMTime(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "hello\n"})

	res, err := New(root, nil).Scan(t.Context())
	require.NoError(t, err)
	require.Len(t, res.Units, 1)

	u := res.Units[0]
	assert.Equal(t, int64(6), u.SizeBytes)
	assert.False(t, u.ModTime.IsZero())
	assert.True(t, filepath.IsAbs(u.AbsPath))
}
