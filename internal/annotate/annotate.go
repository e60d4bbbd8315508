// Package annotate produces the annotated (.pyx) rendition of a Python
// source file: the original text with Cython directive comments inserted
// around function definitions and range loops, telling the downstream
// compiler to drop bounds/overflow/None checks there.
//
// Detection is a line-level heuristic, not a parse: it recognizes the
// common `def ` and `for i in range(...)` forms and will miss more exotic
// loop constructs. That is acceptable — annotations only widen the
// optimization surface, they never change semantics.
package annotate

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// header is inserted once at the top of every annotated file.
const header = "# cimport cython"

// funcDirectives are placed immediately before each function definition,
// at the definition's indentation.
var funcDirectives = []string{
	"# @boundscheck(False)",
	"# @wraparound(False)",
	"# @nonecheck(False)",
	"# @cdivision(True)",
}

// Annotate returns the annotated form of src. It is pure and idempotent:
// Annotate(Annotate(src)) == Annotate(src) for any input, so re-running a
// build over staged output never double-annotates.
func Annotate(src string) string {
	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines)+len(funcDirectives))

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "#") {
			out = append(out, line)
			continue
		}

		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

		switch {
		case strings.HasPrefix(stripped, "for ") && strings.Contains(stripped, " in range"):
			if v := loopVar(stripped); v != "" {
				hint := indent + "# cdef int " + v + " (annotated)"
				if !precededBy(lines, i, []string{hint}) {
					out = append(out, hint)
				}
			}
		case strings.HasPrefix(stripped, "def "):
			block := make([]string, len(funcDirectives))
			for j, d := range funcDirectives {
				block[j] = indent + d
			}
			if !precededBy(lines, i, block) {
				out = append(out, block...)
			}
		}

		out = append(out, line)
	}

	joined := strings.Join(out, "\n")
	if !strings.Contains(joined, header) {
		joined = header + "\n" + joined
	}
	return joined
}

// precededBy reports whether the lines immediately before index i are
// exactly block, which means the construct is already annotated.
func precededBy(lines []string, i int, block []string) bool {
	if i < len(block) {
		return false
	}
	for j, want := range block {
		if lines[i-len(block)+j] != want {
			return false
		}
	}
	return true
}

// loopVar extracts the loop variable from a `for X in range(...)` line,
// returning "" when X is not a plain identifier (tuple targets etc.).
func loopVar(stripped string) string {
	fields := strings.Fields(stripped)
	if len(fields) < 2 {
		return ""
	}
	v := fields[1]
	if !isIdentifier(v) {
		return ""
	}
	return v
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// StagePath maps a relative source path to its annotated counterpart
// under stagingDir, swapping the extension for .pyx and mirroring the
// directory layout.
func StagePath(stagingDir, relPath string) string {
	stem := strings.TrimSuffix(path.Base(relPath), path.Ext(relPath))
	return filepath.Join(stagingDir, filepath.FromSlash(path.Dir(relPath)), stem+".pyx")
}

// WriteAnnotated reads the source file, annotates it and writes the
// result to its staging location, creating directories as needed. It
// returns the staged file path.
func WriteAnnotated(srcPath, relPath, stagingDir string) (string, error) {
	src, err := os.ReadFile(srcPath)
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", srcPath, err)
	}

	dest := StagePath(stagingDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}
	if err := os.WriteFile(dest, []byte(Annotate(string(src))), 0o644); err != nil {
		return "", fmt.Errorf("write annotated source: %w", err)
	}
	return dest, nil
}
