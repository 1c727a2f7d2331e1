// Package testutils provides shared test infrastructure.
//
// The file server is available to every test. Container-backed helpers
// are only built with the integration tag.
package testutils

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestFile defines a served file.
type TestFile struct {
	Name    string
	Data    []byte
	ModTime time.Time // sent as Last-Modified when set
}

// Fault replaces the normal handling of one request.
type Fault struct {
	// Status, if non-zero, is returned with an empty body.
	Status int

	// CutAfter, if non-zero, ends the response after that many body bytes
	// while still announcing the full length.
	CutAfter int64

	// Stall, if non-zero, pauses for that long after CutAfter bytes
	// (or before the body when CutAfter is zero) and then ends the response.
	Stall time.Duration

	// Header is added to the response.
	Header http.Header
}

// Request is a request seen by the server.
type Request struct {
	Path  string
	Range string
}

// Server serves files with "bytes=N-" range support and scripted faults.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	files       map[string]TestFile
	faults      map[string][]Fault
	requests    []Request
	ignoreRange bool
	delay       time.Duration

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

// GenerateTestData generates test data of the given size.
// For files <= 10MB, uses deterministic pattern. For larger files, uses random data.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 251)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// StartServer starts a file server that is closed when the test ends.
func StartServer(t *testing.T, files ...TestFile) *Server {
	t.Helper()

	s := &Server{
		files:  make(map[string]TestFile),
		faults: make(map[string][]Fault),
	}
	for _, f := range files {
		s.files["/"+f.Name] = f
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// FileURL returns the URL of the named file.
func (s *Server) FileURL(name string) string {
	return s.URL + "/" + name
}

// AddFaults queues faults for the named file. Each request consumes one.
func (s *Server) AddFaults(name string, faults ...Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults["/"+name] = append(s.faults["/"+name], faults...)
}

// SetIgnoreRange makes the server answer every request with 200 and the
// full content.
func (s *Server) SetIgnoreRange(ignore bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignoreRange = ignore
}

// SetDelay holds every response for d before sending headers.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns the requests seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// RequestCount returns how many requests were made for the named file.
func (s *Server) RequestCount(name string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Path == "/"+name {
			n++
		}
	}
	return n
}

// MaxInflight returns the highest number of concurrent requests observed.
func (s *Server) MaxInflight() int {
	return int(s.maxInflight.Load())
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	cur := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		peak := s.maxInflight.Load()
		if cur <= peak || s.maxInflight.CompareAndSwap(peak, cur) {
			break
		}
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Path: r.URL.Path, Range: r.Header.Get("Range")})
	var fault *Fault
	if q := s.faults[r.URL.Path]; len(q) > 0 {
		fault = &q[0]
		s.faults[r.URL.Path] = q[1:]
	}
	file, ok := s.files[r.URL.Path]
	ignoreRange := s.ignoreRange
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if fault != nil {
		for k, v := range fault.Header {
			w.Header()[k] = v
		}
		if fault.Status != 0 {
			w.WriteHeader(fault.Status)
			return
		}
	}

	if !ok {
		http.NotFound(w, r)
		return
	}

	data := file.Data
	size := int64(len(data))
	if !file.ModTime.IsZero() {
		w.Header().Set("Last-Modified", file.ModTime.UTC().Format(http.TimeFormat))
	}

	start, end, ranged := parseRange(r.Header.Get("Range"), size)
	if ignoreRange {
		ranged = false
	}

	status := http.StatusOK
	if ranged {
		if start > 0 && start >= size {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if size > 0 {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		}
		status = http.StatusPartialContent
	} else {
		start, end = 0, size-1
	}

	body := data[start : end+1]
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)

	if fault == nil || (fault.CutAfter == 0 && fault.Stall == 0) {
		w.Write(body)
		return
	}

	cut := fault.CutAfter
	if cut > int64(len(body)) {
		cut = int64(len(body))
	}
	w.Write(body[:cut])
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if fault.Stall > 0 {
		select {
		case <-time.After(fault.Stall):
		case <-r.Context().Done():
		}
	}
	// Returning early with a declared Content-Length makes the server
	// close the connection, which the client sees as an unexpected EOF.
}

// parseRange parses "bytes=N-" and "bytes=N-M". ok is false if no usable
// range was sent.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return 0, 0, false
	}
	from, to, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false
	}
	end = size - 1
	if to != "" {
		if end, err = strconv.ParseInt(to, 10, 64); err != nil {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}

// CompareFileToData compares the contents of the file at path with expected.
func CompareFileToData(t *testing.T, path string, expected []byte) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	CompareReaderToData(t, f, expected)
}

// CompareReaderToData compares reader output with expected data in chunks.
// This is memory-efficient for large files.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	chunkSize := 1024 * 1024 // 1MB
	buf := make([]byte, chunkSize)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
