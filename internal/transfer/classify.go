package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io/fs"
	"net"
	"net/http"

	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/integrity"
	"github.com/ligustah/haul/internal/retry"
)

// Classify maps an error to the action the retry driver should take.
// A nil error is a Success.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.Success
	}

	var (
		mismatch  *integrity.MismatchError
		invalid   *InvalidPathError
		timeout   *TimeoutError
		admission *AdmissionError
		status    *haulhttp.StatusError
		fsErr     *FilesystemError
	)
	switch {
	case errors.As(err, &mismatch), errors.As(err, &invalid):
		return retry.Fatal
	case errors.As(err, &timeout), errors.As(err, &admission):
		return retry.Retryable
	case errors.Is(err, ErrRangeMismatch):
		return retry.Retryable
	case errors.As(err, &status):
		return ClassifyStatus(status.Code)
	case errors.As(err, &fsErr):
		return classifyFilesystem(fsErr.Err)
	}
	return classifyTransport(err)
}

// ClassifyStatus classifies an HTTP status code that is not a success.
func ClassifyStatus(code int) retry.Class {
	switch {
	case code >= 500 && code <= 599:
		return retry.Retryable
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code == 449: // Retry With
		return retry.Retryable
	}
	return retry.Fatal
}

func classifyTransport(err error) retry.Class {
	if errors.Is(err, haulhttp.ErrInvalidURL) {
		return retry.Fatal
	}
	if errors.Is(err, haulhttp.ErrTimeout) {
		return retry.Retryable
	}

	var (
		certErr      *tls.CertificateVerificationError
		hostnameErr  x509.HostnameError
		authorityErr x509.UnknownAuthorityError
		invalidErr   x509.CertificateInvalidError
	)
	if errors.As(err, &certErr) || errors.As(err, &hostnameErr) ||
		errors.As(err, &authorityErr) || errors.As(err, &invalidErr) {
		return retry.Fatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retry.Retryable
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Fatal
	}
	return retry.Retryable
}

// classifyPortable classifies filesystem errors by their portable kind.
func classifyPortable(err error) retry.Class {
	switch {
	case errors.Is(err, fs.ErrPermission),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrExist),
		errors.Is(err, fs.ErrInvalid):
		return retry.Fatal
	}
	return retry.Retryable
}
