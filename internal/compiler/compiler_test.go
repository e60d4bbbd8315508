package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMissingModule(t *testing.T) {
	tests := []struct {
		name        string
		diagnostics string
		want        string
	}{
		{
			"module not found",
			"Traceback (most recent call last):\nModuleNotFoundError: No module named 'numpy'",
			"numpy",
		},
		{
			"dotted module collapses to top level",
			"ModuleNotFoundError: No module named 'scipy.sparse'",
			"scipy",
		},
		{
			"legacy import error",
			"ImportError: No module named requests",
			"requests",
		},
		{
			"cython cimport",
			"mod.pyx:3:8: Cannot find module 'cpython.array'",
			"cpython",
		},
		{
			"ordinary syntax error",
			"mod.pyx:10:4: Expected an identifier or literal",
			"",
		},
		{
			"empty diagnostics",
			"",
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMissingModule(tt.diagnostics))
		})
	}
}

func TestResultDiagnostics(t *testing.T) {
	r := &Result{Stdout: "out", Stderr: "err"}
	assert.Equal(t, "err\nout", r.Diagnostics())

	assert.Equal(t, "only", (&Result{Stderr: "only"}).Diagnostics())
	assert.Equal(t, "only", (&Result{Stdout: "only"}).Diagnostics())
	assert.Empty(t, (*Result)(nil).Diagnostics())
}

func TestResultSuccess(t *testing.T) {
	assert.True(t, (&Result{}).Success())
	assert.False(t, (&Result{ExitCode: 1}).Success())
	assert.False(t, (*Result)(nil).Success())
}

func TestDirectiveArgsSortedAndComplete(t *testing.T) {
	args := directiveArgs()
	require.Len(t, args, len(Directives))
	assert.IsIncreasing(t, args)
	assert.Contains(t, args, "boundscheck=False")
	assert.Contains(t, args, "language_level=3")
}

func TestNoopCompiler(t *testing.T) {
	n := &Noop{}
	res, err := n.Compile(t.Context(), Request{SourcePath: "x.pyx"})
	require.NoError(t, err)
	assert.True(t, res.Success())

	v, err := n.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "noop", v)

	n.FixedVersion = "cython-9"
	v, err = n.Version(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "cython-9", v)
}

func TestCompileMissingBinary(t *testing.T) {
	c := NewCythonize("definitely-not-a-real-binary-xyz")
	_, err := c.Compile(t.Context(), Request{SourcePath: "x.pyx"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCompilerNotFound)

	_, err = c.Version(t.Context())
	assert.ErrorIs(t, err, ErrCompilerNotFound)
}
