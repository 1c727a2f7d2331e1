package transfer

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidPath is matched by every *InvalidPathError.
	ErrInvalidPath = errors.New("transfer: invalid destination path")

	// ErrRangeMismatch means the server answered a resume request with a
	// range other than the one asked for.
	ErrRangeMismatch = errors.New("transfer: unexpected content range")
)

// TransportError is a failure talking to the source.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FilesystemError is a failure on a local file.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// TimeoutError is returned when a request or a body read exceeds its limit.
type TimeoutError struct {
	Stage string // "request" or "chunk"
	Limit time.Duration // zero if not known here
	Err   error
}

func (e *TimeoutError) Error() string {
	if e.Limit > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Stage, e.Limit)
	}
	return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// AdmissionError is returned when a transfer could not obtain a
// concurrency slot.
type AdmissionError struct {
	Err error
}

func (e *AdmissionError) Error() string {
	return fmt.Sprintf("admission failed: %v", e.Err)
}

func (e *AdmissionError) Unwrap() error { return e.Err }

// InvalidPathError is returned for a destination without a usable file name.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid destination path %q: no file name", e.Path)
}

func (e *InvalidPathError) Is(target error) bool { return target == ErrInvalidPath }
