package transfer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/juju/ratelimit"

	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/integrity"
	"github.com/ligustah/haul/internal/logger"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/retry"
)

const (
	// DefaultChunkTimeout bounds a single body read.
	DefaultChunkTimeout = 500 * time.Millisecond

	// DefaultFlushThreshold is the number of buffered bytes that triggers a flush.
	DefaultFlushThreshold = 512 * 1024

	readSize = 32 * 1024
)

// Item is a single download request.
type Item struct {
	URL  string
	Dest string

	// Integrity is optional. When set the downloaded bytes must match it
	// before the destination is written.
	Integrity *integrity.Spec
}

// Fetcher opens a source starting at a byte offset. Implementations send
// the offset even when it is zero and return *haulhttp.StatusError for
// responses that are not a success.
type Fetcher interface {
	Get(ctx context.Context, url string, offset int64) (*haulhttp.Response, error)
}

// TempPath returns the temp file location for dest: the base name of dest
// inside tempDir.
func TempPath(tempDir, dest string) (string, error) {
	if dest == "" {
		return "", &InvalidPathError{Path: dest}
	}
	base := filepath.Base(dest)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", &InvalidPathError{Path: dest}
	}
	return filepath.Join(tempDir, base), nil
}

// Executor performs attempts for one Item. The temp file at TempPath is
// the only state carried between attempts.
type Executor struct {
	Fetcher        Fetcher
	Item           Item
	TempPath       string
	ChunkTimeout   time.Duration
	FlushThreshold int

	// Limiter, if set, is shared by all transfers and caps their combined rate.
	Limiter *ratelimit.Bucket

	Tracker *progress.Tracker
	Log     logger.Logger

	rename func(oldpath, newpath string) error
}

// Attempt runs one attempt and classifies its result.
func (e *Executor) Attempt(ctx context.Context) retry.Outcome {
	err := e.attempt(ctx)
	if err == nil {
		return retry.Succeeded()
	}
	if ctx.Err() != nil {
		return retry.Permanent(err)
	}
	if Classify(err) == retry.Fatal {
		return retry.Permanent(err)
	}
	return retry.Transient(err)
}

func (e *Executor) attempt(ctx context.Context) error {
	offset, err := e.tempSize()
	if err != nil {
		return err
	}
	e.debugf("requesting %s from offset %d", e.Item.URL, offset)

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	resp, err := e.Fetcher.Get(reqCtx, e.Item.URL, offset)
	if err != nil {
		var se *haulhttp.StatusError
		if errors.As(err, &se) && se.Code == http.StatusRequestedRangeNotSatisfiable && offset > 0 {
			return e.unsatisfiable(se, offset)
		}
		if errors.Is(err, haulhttp.ErrTimeout) {
			return &TimeoutError{Stage: "request", Err: err}
		}
		return &TransportError{URL: e.Item.URL, Err: err}
	}
	defer resp.Body.Close()

	resume := resp.StatusCode == http.StatusPartialContent && offset > 0
	if resume {
		if err := e.checkRange(resp, offset); err != nil {
			return err
		}
	} else {
		offset = 0
	}

	remaining := resp.ContentLength
	if remaining < 0 {
		remaining = 0
	}
	e.Tracker.Start(offset, remaining)

	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(e.TempPath, flags, 0o644)
	if err != nil {
		return &FilesystemError{Op: "open", Path: e.TempPath, Err: err}
	}

	err = e.stream(reqCtx, cancel, resp.Body, f)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = &FilesystemError{Op: "close", Path: e.TempPath, Err: cerr}
	}
	if err != nil {
		return err
	}

	return e.finalize(lastModified(resp.Header))
}

// tempSize returns the current temp file length, zero if it does not exist.
func (e *Executor) tempSize() (int64, error) {
	fi, err := os.Stat(e.TempPath)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, &FilesystemError{Op: "stat", Path: e.TempPath, Err: err}
	}
	return fi.Size(), nil
}

// checkRange verifies that a 206 response starts where the temp file ends.
// On a mismatch the temp file is discarded so the next attempt starts over.
func (e *Executor) checkRange(resp *haulhttp.Response, offset int64) error {
	cr := resp.Header.Get("Content-Range")
	if cr == "" {
		return nil
	}
	start, _, _, err := haulhttp.ParseContentRange(cr)
	if err == nil && start == offset {
		return nil
	}
	e.discard()
	if err != nil {
		return &TransportError{URL: e.Item.URL, Err: fmt.Errorf("%w: %v", ErrRangeMismatch, err)}
	}
	return &TransportError{URL: e.Item.URL, Err: fmt.Errorf("%w: requested offset %d, got %d", ErrRangeMismatch, offset, start)}
}

// unsatisfiable handles a 416 for a resume request. If the server reports
// a total equal to the bytes on disk the temp file is already complete.
func (e *Executor) unsatisfiable(se *haulhttp.StatusError, offset int64) error {
	if cr := se.Header.Get("Content-Range"); cr != "" {
		start, _, total, err := haulhttp.ParseContentRange(cr)
		if err == nil && start < 0 && total == offset {
			e.debugf("temp file for %s already complete at %d bytes", e.Item.URL, offset)
			e.Tracker.Start(offset, 0)
			return e.finalize(time.Time{})
		}
	}
	e.discard()
	return &TransportError{URL: e.Item.URL, Err: fmt.Errorf("%w: %v", ErrRangeMismatch, se)}
}

// stream copies body into f. Each read must complete within ChunkTimeout,
// otherwise cancel aborts the request that produced body.
// Received bytes are flushed before any error is returned so a later
// attempt resumes after them.
func (e *Executor) stream(ctx context.Context, cancel context.CancelFunc, body io.Reader, f *os.File) error {
	var expired atomic.Bool
	timer := time.AfterFunc(e.ChunkTimeout, func() {
		expired.Store(true)
		cancel()
	})
	defer timer.Stop()

	w := bufio.NewWriterSize(f, e.FlushThreshold+readSize)
	buf := make([]byte, readSize)

	fail := func(err error) error {
		if ferr := w.Flush(); ferr != nil {
			e.log().Warningf("flush %s: %v", e.TempPath, ferr)
		}
		return err
	}

	for {
		n, rerr := body.Read(buf)
		fired := !timer.Stop()
		if n > 0 {
			e.Tracker.Add(int64(n))
			if _, err := w.Write(buf[:n]); err != nil {
				return &FilesystemError{Op: "write", Path: e.TempPath, Err: err}
			}
			if w.Buffered() >= e.FlushThreshold {
				if err := w.Flush(); err != nil {
					return &FilesystemError{Op: "flush", Path: e.TempPath, Err: err}
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		// fired means the deadline passed even if the callback has not
		// stored expired yet.
		if fired || expired.Load() {
			return fail(&TimeoutError{Stage: "chunk", Limit: e.ChunkTimeout, Err: rerr})
		}
		if rerr != nil {
			return fail(&TransportError{URL: e.Item.URL, Err: rerr})
		}
		if e.Limiter != nil && n > 0 {
			if err := e.throttle(ctx, n); err != nil {
				return fail(&TransportError{URL: e.Item.URL, Err: err})
			}
		}
		timer.Reset(e.ChunkTimeout)
	}

	if err := w.Flush(); err != nil {
		return &FilesystemError{Op: "flush", Path: e.TempPath, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &FilesystemError{Op: "sync", Path: e.TempPath, Err: err}
	}
	return nil
}

func (e *Executor) throttle(ctx context.Context, n int) error {
	d := e.Limiter.Take(int64(n))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discard removes the temp file.
func (e *Executor) discard() {
	if err := os.Remove(e.TempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.log().Warningf("remove %s: %v", e.TempPath, err)
	}
}

func (e *Executor) debugf(format string, args ...interface{}) {
	e.log().Debugf(format, args...)
}

func (e *Executor) log() logger.Logger {
	if e.Log == nil {
		e.Log = logger.New("transfer")
	}
	return e.Log
}

func lastModified(h http.Header) time.Time {
	v := h.Get("Last-Modified")
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}
