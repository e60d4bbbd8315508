// Package pathspec compiles ignore-file style exclusion rules into a
// predicate over slash-separated relative paths.
//
// Semantics follow the usual ignore-file conventions: `*` and `**`
// wildcards, directory patterns (trailing `/`), root-anchored patterns
// (leading `/`), `!` negation, `#` comments and blank lines. Rules are
// evaluated in file order and the last rule that matches a path (or any
// of its ancestor directories) decides the outcome, so a negation after
// a directory exclude re-includes the specific path it names.
package pathspec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Rule is a single parsed exclusion pattern.
type Rule struct {
	Raw     string // Original pattern text as written
	Negate  bool   // `!` prefix: matching paths are re-included
	DirOnly bool   // Trailing `/`: matches the directory and everything below it
	pattern string // Normalized doublestar pattern, validated at compile time
}

// RuleSet is an ordered list of rules. Immutable after Compile.
type RuleSet struct {
	Rules []Rule
}

// ParseError reports a malformed pattern. The rule index refers to the
// position in the combined rule list handed to Compile.
type ParseError struct {
	Index int
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("exclusion rule %d (%q): %v", e.Index, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseLines parses exclusion-file lines into raw patterns, dropping
// comments and blank lines. Backslashes are normalized to forward
// slashes so Windows-style patterns behave.
func ParseLines(lines []string) []string {
	var patterns []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.ReplaceAll(line, "\\", "/"))
	}
	return patterns
}

// LoadOptions controls which files contribute exclusion patterns.
type LoadOptions struct {
	File           string   // Dedicated exclusion file name, relative to root
	MergeGitignore bool     // Also read .gitignore when present
	Extra          []string // Appended after file patterns
}

// LoadPatterns reads the exclusion file (and optionally .gitignore) under
// root. Missing files contribute nothing; only read failures on existing
// files are errors.
func LoadPatterns(root string, opts LoadOptions) ([]string, error) {
	var patterns []string

	sources := []string{}
	if opts.File != "" {
		sources = append(sources, opts.File)
	}
	if opts.MergeGitignore {
		sources = append(sources, ".gitignore")
	}

	for _, name := range sources {
		path := filepath.Join(root, name)
		lines, err := readLines(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read exclusion file %s: %w", path, err)
		}
		patterns = append(patterns, ParseLines(lines)...)
	}

	patterns = append(patterns, opts.Extra...)
	return patterns, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
