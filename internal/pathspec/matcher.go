package pathspec

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher answers exclusion queries for relative paths. Patterns are
// normalized and validated once at construction; the per-path check does
// not build any matching state.
type Matcher struct {
	rules []Rule
}

// Compile parses and validates the given patterns into a Matcher.
// A malformed pattern (e.g. an unbalanced bracket class) fails the whole
// compilation with a ParseError naming the offending rule.
func Compile(patterns []string) (*Matcher, error) {
	rules := make([]Rule, 0, len(patterns))
	for i, raw := range patterns {
		rule, err := compileRule(raw)
		if err != nil {
			return nil, &ParseError{Index: i, Raw: raw, Err: err}
		}
		rules = append(rules, rule)
	}
	return &Matcher{rules: rules}, nil
}

func compileRule(raw string) (Rule, error) {
	rule := Rule{Raw: raw}

	core := raw
	if strings.HasPrefix(core, "!") {
		rule.Negate = true
		core = core[1:]
	}
	if strings.HasSuffix(core, "/") {
		rule.DirOnly = true
		core = strings.TrimSuffix(core, "/")
	}

	anchored := strings.HasPrefix(core, "/")
	core = strings.TrimPrefix(core, "/")

	// A pattern without an interior slash matches at any depth, the same
	// way a bare name in a .gitignore does. Anything else is anchored to
	// the scan root.
	if !anchored && !strings.Contains(core, "/") {
		core = "**/" + core
	}
	rule.pattern = core

	if !doublestar.ValidatePattern(rule.pattern) {
		return Rule{}, doublestar.ErrBadPattern
	}
	return rule, nil
}

// IsExcluded reports whether the slash-separated relative path is
// excluded. The last rule matching the path or one of its ancestor
// directories wins; an excluded ancestor therefore carries down to every
// descendant unless a later negation names the path more specifically.
func (m *Matcher) IsExcluded(relPath string) bool {
	if m == nil || len(m.rules) == 0 {
		return false
	}
	relPath = strings.Trim(strings.ReplaceAll(relPath, "\\", "/"), "/")
	if relPath == "" || relPath == "." {
		return false
	}

	excluded := false
	for i := range m.rules {
		rule := &m.rules[i]
		if rule.matches(relPath) {
			excluded = !rule.Negate
		}
	}
	return excluded
}

// CanPruneDir reports whether a walk may skip the directory's whole
// subtree. An excluded directory is only prunable when no negation rule
// could re-include a path beneath it; otherwise the walk must descend
// and let IsExcluded decide per file.
func (m *Matcher) CanPruneDir(relPath string) bool {
	if !m.IsExcluded(relPath) {
		return false
	}
	dir := strings.Trim(strings.ReplaceAll(relPath, "\\", "/"), "/")
	for i := range m.rules {
		rule := &m.rules[i]
		if rule.Negate && rule.couldMatchUnder(dir) {
			return false
		}
	}
	return true
}

// couldMatchUnder conservatively reports whether the rule's pattern can
// match a path strictly below dir. The literal part of the pattern
// before its first wildcard either descends into dir, or runs out at a
// point where a wildcard could span the boundary.
func (rule *Rule) couldMatchUnder(dir string) bool {
	idx := strings.IndexAny(rule.pattern, "*?[{")
	if idx < 0 {
		return strings.HasPrefix(rule.pattern, dir+"/")
	}
	prefix := rule.pattern[:idx]
	return strings.HasPrefix(prefix, dir+"/") || strings.HasPrefix(dir+"/", prefix)
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (rule *Rule) matches(relPath string) bool {
	// Direct match on the full path.
	if doublestar.MatchUnvalidated(rule.pattern, relPath) {
		return true
	}
	// Match against each ancestor directory: excluding a directory
	// excludes its whole subtree, and directory patterns only ever apply
	// to ancestors of a file path.
	for idx := strings.IndexByte(relPath, '/'); idx > 0; {
		ancestor := relPath[:idx]
		if doublestar.MatchUnvalidated(rule.pattern, ancestor) {
			return true
		}
		next := strings.IndexByte(relPath[idx+1:], '/')
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return false
}
