package runtime

// PanicPolicy determines what happens after a panic is recovered.
type PanicPolicy int

const (
	// KeepRunning logs the panic and lets the process continue.
	KeepRunning PanicPolicy = iota
	// CrashProcess logs the panic and re-panics.
	CrashProcess
)

// String returns the policy name.
func (p PanicPolicy) String() string {
	switch p {
	case KeepRunning:
		return "keep_running"
	case CrashProcess:
		return "crash_process"
	default:
		return "unknown"
	}
}
