package report

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeClassification(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*Report)
		want  Outcome
	}{
		{"empty run", func(_ *Report) {}, OutcomeNoop},
		{"all skipped", func(r *Report) { r.AddSkipped("a.py") }, OutcomeNoop},
		{"all succeeded", func(r *Report) { r.AddSucceeded("a.py", "a.so") }, OutcomeSuccess},
		{"partial", func(r *Report) {
			r.AddSucceeded("a.py", "a.so")
			r.AddFailed("b.py", ErrorDetail{Diagnostics: "boom", ExitCode: 1})
		}, OutcomePartial},
		{"all failed", func(r *Report) {
			r.AddFailed("b.py", ErrorDetail{ExitCode: 1})
		}, OutcomeFailed},
		{"missing module only", func(r *Report) {
			r.AddMissingModule("c.py", "numpy", ErrorDetail{ExitCode: 1})
		}, OutcomeFailed},
		{"canceled wins", func(r *Report) {
			r.AddSucceeded("a.py", "a.so")
			r.MarkCanceled()
		}, OutcomeCanceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New("run-1", "./src", "cython-3.0")
			tt.setup(r)
			assert.Equal(t, tt.want, r.Outcome())
		})
	}
}

func TestCountsAndAccessors(t *testing.T) {
	r := New("run-1", "./src", "cython-3.0")
	r.AddSucceeded("z.py", "z.so")
	r.AddSucceeded("a.py", "a.so")
	r.AddFailed("f.py", ErrorDetail{Diagnostics: "syntax error", ExitCode: 1})
	r.AddMissingModule("m.py", "numpy", ErrorDetail{Diagnostics: "No module named 'numpy'", ExitCode: 1})
	r.AddSkipped("s.py")
	r.AddScanWarning("locked: permission denied")

	s, f, m, k := r.Counts()
	assert.Equal(t, 2, s)
	assert.Equal(t, 1, f)
	assert.Equal(t, 1, m)
	assert.Equal(t, 1, k)

	assert.Equal(t, []string{"a.py", "z.py"}, r.Succeeded())
	assert.Equal(t, []string{"s.py"}, r.Skipped())
	assert.Equal(t, []string{"numpy"}, r.MissingModules())
	assert.Len(t, r.ScanWarnings(), 1)

	failures := r.Failures()
	assert.Len(t, failures, 2)
	assert.Equal(t, "f.py", failures[0].Path)
	assert.Empty(t, failures[0].MissingModule)
	assert.Equal(t, "m.py", failures[1].Path)
	assert.Equal(t, "numpy", failures[1].MissingModule)

	assert.Equal(t, "2 succeeded, 1 failed, 1 missing modules, 1 skipped", r.Summary())
}

func TestConcurrentAggregation(t *testing.T) {
	r := New("run-1", "./src", "cython-3.0")

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			switch n % 3 {
			case 0:
				r.AddSucceeded(string(rune('a'+n))+".py", "")
			case 1:
				r.AddFailed(string(rune('a'+n))+".py", ErrorDetail{ExitCode: 1})
			default:
				r.AddSkipped(string(rune('a'+n)) + ".py")
			}
		}(i)
	}
	wg.Wait()

	s, f, _, k := r.Counts()
	assert.Equal(t, 50, s+f+k)
}

func TestDurationAfterFinish(t *testing.T) {
	r := New("run-1", "./src", "cython-3.0")
	assert.Zero(t, r.Duration())
	r.Finish()
	assert.GreaterOrEqual(t, r.Duration().Nanoseconds(), int64(0))
}
