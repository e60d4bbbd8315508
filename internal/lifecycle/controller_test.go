package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/cybuild/internal/compiler"
	"git.home.luguber.info/inful/cybuild/internal/config"
	"git.home.luguber.info/inful/cybuild/internal/history"
	"git.home.luguber.info/inful/cybuild/internal/report"
)

func testConfig(t *testing.T, target string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Target = target
	cfg.Build.Jobs = 2
	require.NoError(t, cfg.Validate())
	return cfg
}

func writeSource(t *testing.T, root, rel string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("def f():\n    return 1\n"), 0o644))
}

func TestBuildSucceedsAndReachesDone(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "pkg/a.py")
	writeSource(t, root, "pkg/b.py")

	ctrl := New(testConfig(t, root)).WithCompiler(&compiler.Noop{FixedVersion: "noop 1.0"})
	rpt, err := ctrl.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, ctrl.State())
	assert.Equal(t, report.OutcomeSuccess, rpt.Outcome())
	succeeded, _, _, _ := rpt.Counts()
	assert.Equal(t, 2, succeeded)
}

func TestSecondBuildIsNoop(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "pkg/a.py")

	cfg := testConfig(t, root)
	comp := &compiler.Noop{FixedVersion: "noop 1.0"}

	_, err := New(cfg).WithCompiler(comp).Build(context.Background())
	require.NoError(t, err)

	rpt, err := New(cfg).WithCompiler(comp).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.OutcomeNoop, rpt.Outcome())
	_, _, _, skipped := rpt.Counts()
	assert.Equal(t, 1, skipped)
}

func TestBuildMissingTargetFails(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "nope"))
	ctrl := New(cfg).WithCompiler(&compiler.Noop{FixedVersion: "noop 1.0"})

	_, err := ctrl.Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, ctrl.State())
}

func TestBuildHonorsExclusionFile(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "pkg/a.py")
	writeSource(t, root, "vendor/lib.py")
	require.NoError(t, os.WriteFile(filepath.Join(root, "exclude.txt"), []byte("vendor/\n"), 0o644))

	ctrl := New(testConfig(t, root)).WithCompiler(&compiler.Noop{FixedVersion: "noop 1.0"})
	rpt, err := ctrl.Build(context.Background())
	require.NoError(t, err)

	succeeded, _, _, _ := rpt.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []string{"pkg/a.py"}, rpt.Succeeded())
}

func TestBuildRecordsHistory(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "pkg/a.py")

	hist, err := history.Open(":memory:")
	require.NoError(t, err)
	defer hist.Close()

	ctrl := New(testConfig(t, root)).
		WithCompiler(&compiler.Noop{FixedVersion: "noop 1.0"}).
		WithHistory(hist)
	rpt, err := ctrl.Build(context.Background())
	require.NoError(t, err)

	runs, err := hist.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rpt.RunID, runs[0].ID)
	assert.Equal(t, string(report.OutcomeSuccess), runs[0].Outcome)
	assert.Equal(t, 1, runs[0].Succeeded)

	units, err := hist.UnitsForRun(context.Background(), rpt.RunID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "pkg/a.py", units[0].Path)
	assert.Equal(t, "succeeded", units[0].Status)
}

func TestCleanRemovesArtifacts(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "pkg/a.py")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.c"), []byte("/* */"), 0o644))

	ctrl := New(testConfig(t, root))
	removed, err := ctrl.Clean(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, ctrl.State())
	assert.Contains(t, removed, "build")
	assert.Contains(t, removed, "pkg/a.c")
	_, statErr := os.Stat(filepath.Join(root, "pkg", "a.py"))
	assert.NoError(t, statErr)
}

func TestCleanKeepsAllowListedPaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "keep"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "keep", "m.so"), []byte("x"), 0o644))

	cfg := testConfig(t, root)
	cfg.Exclusion.Extra = []string{"keep/"}

	removed, err := New(cfg).Clean(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
	_, statErr := os.Stat(filepath.Join(root, "keep", "m.so"))
	assert.NoError(t, statErr)
}
