package compiler

import "regexp"

// Patterns for the "unresolved import" shapes the toolchain stack emits.
// The Python interpreter raises ModuleNotFoundError while Cython itself
// reports missing cimports as "Cannot find module".
var missingModulePatterns = []*regexp.Regexp{
	regexp.MustCompile(`ModuleNotFoundError: No module named '([A-Za-z_][A-Za-z0-9_.]*)'`),
	regexp.MustCompile(`ImportError: No module named '?([A-Za-z_][A-Za-z0-9_.]*)'?`),
	regexp.MustCompile(`Cannot find module '?([A-Za-z_][A-Za-z0-9_.]*)'?`),
}

// DetectMissingModule scans compiler diagnostics for an unresolved
// import and returns the top-level module identifier, or "" when the
// failure is not import-related.
func DetectMissingModule(diagnostics string) string {
	for _, re := range missingModulePatterns {
		if m := re.FindStringSubmatch(diagnostics); m != nil {
			name := m[1]
			// Only the top-level package matters for installation.
			for i := range name {
				if name[i] == '.' {
					return name[:i]
				}
			}
			return name
		}
	}
	return ""
}
