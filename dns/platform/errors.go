package platform

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrNoActiveInterface is returned when no interface carries a default
	// route or resolver binding
	ErrNoActiveInterface = errors.New("no active network interface")

	// ErrPermissionDenied is returned when the caller lacks the elevation
	// needed to change the resolver configuration
	ErrPermissionDenied = errors.New("permission denied: administrator or root privileges are required")
)

// ReadError reports a native failure while reading resolver configuration
type ReadError struct {
	Op  string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read resolver configuration: %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a native failure while writing resolver configuration
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write resolver configuration: %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func readError(op string, err error) error {
	return &ReadError{Op: op, Err: err}
}

// writeError classifies a native write failure, separating missing
// elevation from every other cause
func writeError(op string, err error) error {
	if errors.Is(err, ErrPermissionDenied) {
		return err
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %s: %v", ErrPermissionDenied, op, err)
	}
	return &WriteError{Op: op, Err: err}
}
