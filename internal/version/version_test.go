package version

import "testing"

func TestVersionDefaults(t *testing.T) {
	// Until ldflags set them, all build metadata falls back to "unknown"
	// so the --version output never shows empty strings.
	for name, value := range map[string]string{
		"Version":   Version,
		"BuildTime": BuildTime,
		"GitCommit": GitCommit,
	} {
		if value == "" {
			t.Errorf("%s must not be empty", name)
		}
	}
}
