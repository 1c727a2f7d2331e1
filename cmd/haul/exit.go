package main

import (
	"errors"
	"fmt"

	"github.com/ligustah/haul/internal/downloader"
	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/integrity"
	"github.com/ligustah/haul/internal/retry"
	"github.com/ligustah/haul/internal/transfer"
)

// usageError marks errors caused by the command line or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &usageError{fmt.Errorf(format, args...)}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usage    *usageError
		mismatch *integrity.MismatchError
		fsErr    *transfer.FilesystemError
		status   *haulhttp.StatusError
		tErr     *transfer.TransportError
		timeout  *transfer.TimeoutError
		exhaust  *retry.ExhaustedError
	)
	switch {
	case errors.As(err, &usage),
		errors.Is(err, transfer.ErrInvalidPath),
		errors.Is(err, downloader.ErrTempCollision),
		errors.Is(err, haulhttp.ErrInvalidURL):
		return ExitInvalidArgs
	case errors.As(err, &mismatch):
		return ExitValidationFailed
	case errors.As(err, &fsErr):
		return ExitStorageError
	case errors.As(err, &status),
		errors.As(err, &tErr),
		errors.As(err, &timeout),
		errors.As(err, &exhaust):
		return ExitSourceNotAccess
	default:
		return ExitGeneralError
	}
}
