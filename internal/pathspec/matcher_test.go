package pathspec

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompile(t *testing.T, patterns ...string) *Matcher {
	t.Helper()
	m, err := Compile(patterns)
	require.NoError(t, err)
	return m
}

func TestDirectoryExcludeWithNegation(t *testing.T) {
	m := mustCompile(t, "build/", "!build/keep.ext")

	assert.False(t, m.IsExcluded("build/keep.ext"))
	assert.True(t, m.IsExcluded("build/other.ext"))
	assert.True(t, m.IsExcluded("build/sub/deep.ext"))
	assert.False(t, m.IsExcluded("src/main.py"))
}

func TestNegationOrdering(t *testing.T) {
	m := mustCompile(t, "*.tmp", "!important.tmp")

	assert.True(t, m.IsExcluded("a.tmp"))
	assert.False(t, m.IsExcluded("important.tmp"))
	assert.True(t, m.IsExcluded("nested/b.tmp"))
}

func TestCanPruneDir(t *testing.T) {
	m := mustCompile(t, "build/", "vendor/", "!build/keep.py")

	// A negation points under build, so the walk must descend into it.
	assert.False(t, m.CanPruneDir("build"))
	// Nothing re-includes below vendor.
	assert.True(t, m.CanPruneDir("vendor"))
	// Included directories are never prunable.
	assert.False(t, m.CanPruneDir("src"))
}

func TestCanPruneDirWildcardNegation(t *testing.T) {
	// A bare-name negation compiles to "**/important.tmp" and could
	// re-include a file at any depth.
	m := mustCompile(t, "cache/", "!important.tmp")
	assert.False(t, m.CanPruneDir("cache"))

	m = mustCompile(t, "cache/", "!build/*.py")
	assert.True(t, m.CanPruneDir("cache"))
	assert.False(t, m.CanPruneDir("build"))
}

func TestLastMatchWins(t *testing.T) {
	m := mustCompile(t, "!kept.py", "*.py")

	// The later exclude overrides the earlier negation.
	assert.True(t, m.IsExcluded("kept.py"))
}

func TestBareNameMatchesAtAnyDepth(t *testing.T) {
	m := mustCompile(t, "__pycache__/")

	assert.True(t, m.IsExcluded("__pycache__/mod.pyc"))
	assert.True(t, m.IsExcluded("pkg/__pycache__/mod.pyc"))
	assert.False(t, m.IsExcluded("pkg/module.py"))
}

func TestAnchoredPattern(t *testing.T) {
	m := mustCompile(t, "/vendor/")

	assert.True(t, m.IsExcluded("vendor/lib.py"))
	assert.False(t, m.IsExcluded("pkg/vendor/lib.py"))
}

func TestDoublestarPattern(t *testing.T) {
	m := mustCompile(t, "tests/**/fixtures")

	assert.True(t, m.IsExcluded("tests/unit/fixtures/data.py"))
	assert.False(t, m.IsExcluded("tests/unit/helpers.py"))
}

func TestMalformedPatternFailsCompile(t *testing.T) {
	_, err := Compile([]string{"ok.py", "broken[", "also-ok.py"})
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Index)
	assert.Equal(t, "broken[", perr.Raw)
}

func TestEmptyMatcherExcludesNothing(t *testing.T) {
	m := mustCompile(t)
	assert.False(t, m.IsExcluded("anything/at/all.py"))

	var nilMatcher *Matcher
	assert.False(t, nilMatcher.IsExcluded("x.py"))
}

func TestParseLines(t *testing.T) {
	patterns := ParseLines([]string{
		"# comment",
		"",
		"  build/  ",
		"win\\style\\path",
		"!keep.py",
	})
	assert.Equal(t, []string{"build/", "win/style/path", "!keep.py"}, patterns)
}

func TestLoadPatternsMergesSources(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "exclude.txt"), []byte("build/\n# c\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".gitignore"), []byte("*.log\n"), 0o644))

	patterns, err := LoadPatterns(root, LoadOptions{File: "exclude.txt", MergeGitignore: true, Extra: []string{"*.bak"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"build/", "*.log", "*.bak"}, patterns)
}

func TestLoadPatternsMissingFilesAreFine(t *testing.T) {
	patterns, err := LoadPatterns(t.TempDir(), LoadOptions{File: "exclude.txt", MergeGitignore: true})
	require.NoError(t, err)
	assert.Empty(t, patterns)
}
