package wheel

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Importable module names only. Anything else would end up inside the
// -c program below.
var libNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// locateProgram prints the directory of an installed package, or
// nothing when the package cannot be found.
const locateProgram = `
import importlib.util, os, sys
spec = importlib.util.find_spec(sys.argv[1])
if spec is None or spec.origin is None:
    sys.exit(3)
print(os.path.dirname(spec.origin))
`

// LocateLibrary resolves the source directory of a package installed in
// the given interpreter's environment. The returned path points at the
// package directory inside site-packages.
func LocateLibrary(ctx context.Context, python, name string) (string, error) {
	if !libNamePattern.MatchString(name) {
		return "", fmt.Errorf("invalid library name %q", name)
	}
	if python == "" {
		python = DefaultPython
	}
	resolved, err := exec.LookPath(python)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrPythonNotFound, python)
	}

	cmd := exec.CommandContext(ctx, resolved, "-c", locateProgram, name)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 3 {
			return "", fmt.Errorf("library %q is not installed", name)
		}
		return "", fmt.Errorf("locate library %q: %w\n%s", name, err, strings.TrimSpace(stderr.String()))
	}

	dir := strings.TrimSpace(stdout.String())
	if dir == "" {
		return "", fmt.Errorf("library %q resolved to an empty path", name)
	}
	return dir, nil
}
