package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyPath       = "path"
	KeyTarget     = "target"
	KeyOutput     = "output"
	KeyState      = "state"
	KeyWorker     = "worker"
	KeyDurationMS = "duration_ms"
	KeyModule     = "module"
	KeyToolchain  = "toolchain"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Output(o string) slog.Attr       { return slog.String(KeyOutput, o) }
func State(s string) slog.Attr        { return slog.String(KeyState, s) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Module(m string) slog.Attr       { return slog.String(KeyModule, m) }
func Toolchain(v string) slog.Attr    { return slog.String(KeyToolchain, v) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
