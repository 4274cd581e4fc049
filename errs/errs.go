package errs

import (
	"errors"
	"fmt"
)

// Failure classes. Every error returned by the evaluation and assembly
// packages wraps exactly one of these, test with errors.Is.
var (
	// ErrConfiguration covers unsupported orders, unknown parts, bad sizing
	// and mismatched views. Always fatal for the call that returns it.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnectivityInconsistency means the mesh snapshot and the row map
	// disagree, e.g. a local entity has no global id.
	ErrConnectivityInconsistency = errors.New("connectivity inconsistency")

	// ErrWorkspaceOverflow means an assembly produced more entries than the
	// workspace was sized for. The assembler that reports it is unusable.
	ErrWorkspaceOverflow = errors.New("workspace overflow")
)

// Configurationf formats an error wrapping ErrConfiguration
func Configurationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Inconsistencyf formats an error wrapping ErrConnectivityInconsistency
func Inconsistencyf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConnectivityInconsistency, fmt.Sprintf(format, args...))
}

// Overflowf formats an error wrapping ErrWorkspaceOverflow
func Overflowf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrWorkspaceOverflow, fmt.Sprintf(format, args...))
}
