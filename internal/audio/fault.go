package audio

import (
	"errors"
	"fmt"
)

// FaultCode classifies engine failures. Faults are values handed across
// the controller boundary, never raw panics.
type FaultCode int

const (
	// FaultStorageAccess means the target volume cannot be read or
	// written. Recoverable: the user may retry once storage returns.
	FaultStorageAccess FaultCode = iota + 1

	// FaultInternal means the engine failed unexpectedly during prepare
	// or start. Session-ending: the engine instance is in an unknown
	// state and the screen should close after acknowledgment.
	FaultInternal

	// FaultEngineBusy means the capture device is in use by another
	// caller. Recoverable.
	FaultEngineBusy

	// FaultUnsupportedFormat means the requested codec/container
	// combination was rejected. Session-ending.
	FaultUnsupportedFormat

	// FaultInCallRecord means a call-audio source was requested while a
	// call is active. Session-ending, matching the internal-error path.
	FaultInCallRecord
)

func (c FaultCode) String() string {
	switch c {
	case FaultStorageAccess:
		return "storage-access"
	case FaultInternal:
		return "internal"
	case FaultEngineBusy:
		return "engine-busy"
	case FaultUnsupportedFormat:
		return "unsupported-format"
	case FaultInCallRecord:
		return "in-call-record"
	default:
		return "unknown"
	}
}

// Fault is a typed engine failure.
type Fault struct {
	Code FaultCode
	Err  error
}

func NewFault(code FaultCode, err error) *Fault {
	return &Fault{Code: code, Err: err}
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("engine fault: %s", f.Code)
	}
	return fmt.Sprintf("engine fault: %s: %v", f.Code, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// SessionEnding reports whether the session must close after this fault:
// continuing would operate on an engine instance in an unknown state.
func (f *Fault) SessionEnding() bool {
	switch f.Code {
	case FaultInternal, FaultUnsupportedFormat, FaultInCallRecord:
		return true
	default:
		return false
	}
}

// AsFault extracts a typed fault from an error chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
