package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestGetSendsRangeHeader(t *testing.T) {
	var got []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("Range"))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	for _, offset := range []int64{0, 42} {
		resp, err := client.Get(context.Background(), server.URL, offset)
		if err != nil {
			t.Fatalf("Get(%d): %v", offset, err)
		}
		resp.Body.Close()
	}

	want := []string{"bytes=0-", "bytes=42-"}
	if len(got) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("request %d: expected Range %q, got %q", i, want[i], got[i])
		}
	}
}

func TestGetPartialContent(t *testing.T) {
	data := []byte("Hello, World! This is test data for range requests.")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(r.Header.Get("Range"), "bytes="), "-"), 10, 64)
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.Itoa(len(data)-1)+"/"+strconv.Itoa(len(data)))
		w.Header().Set("Content-Length", strconv.FormatInt(int64(len(data))-start, 10))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start:])
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	resp, err := client.Get(context.Background(), server.URL, 7)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Errorf("expected status 206, got %d", resp.StatusCode)
	}
	if resp.ContentLength != int64(len(data)-7) {
		t.Errorf("expected content length %d, got %d", len(data)-7, resp.ContentLength)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != string(data[7:]) {
		t.Errorf("expected %q, got %q", data[7:], body)
	}

	start, _, total, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		t.Fatalf("ParseContentRange: %v", err)
	}
	if start != 7 || total != int64(len(data)) {
		t.Errorf("unexpected Content-Range %q", resp.Header.Get("Content-Range"))
	}
}

func TestGetStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Get(context.Background(), server.URL, 0)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("expected code 404, got %d", se.Code)
	}
	if se.Header.Get("Retry-After") != "3" {
		t.Errorf("expected headers to be kept, got %v", se.Header)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Error("expected errors.Is(err, ErrNotFound)")
	}
	if errors.Is(err, ErrServerError) {
		t.Error("404 must not match ErrServerError")
	}
}

func TestStatusErrorIs(t *testing.T) {
	tests := []struct {
		code   int
		target error
	}{
		{401, ErrUnauthorized},
		{403, ErrForbidden},
		{404, ErrNotFound},
		{500, ErrServerError},
		{503, ErrServerError},
	}

	for _, tt := range tests {
		err := error(&StatusError{Code: tt.code, Status: http.StatusText(tt.code)})
		if !errors.Is(err, tt.target) {
			t.Errorf("status %d should match %v", tt.code, tt.target)
		}
	}
}

func TestGetInvalidURL(t *testing.T) {
	client := NewClient(DefaultOptions())

	for _, u := range []string{"ftp://example.com/file", "://bad", "http://", "file.bin"} {
		_, err := client.Get(context.Background(), u, 0)
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("Get(%q): expected ErrInvalidURL, got %v", u, err)
		}
	}
}

func TestGetRequestTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.RequestTimeout = 50 * time.Millisecond

	client := NewClient(opts)
	start := time.Now()
	_, err := client.Get(context.Background(), server.URL, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout took too long: %s", elapsed)
	}
}

func TestRequestTimeoutExcludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("first"))
		w.(http.Flusher).Flush()
		time.Sleep(150 * time.Millisecond)
		w.Write([]byte("second"))
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.RequestTimeout = 50 * time.Millisecond

	client := NewClient(opts)
	resp, err := client.Get(context.Background(), server.URL, 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "firstsecond" {
		t.Errorf("expected full body, got %q", body)
	}
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header string
		start  int64
		end    int64
		total  int64
	}{
		{"bytes 0-99/1000", 0, 99, 1000},
		{"bytes 100-199/1000", 100, 199, 1000},
		{"bytes 0-99/*", 0, 99, -1},
		{"bytes */1000", -1, -1, 1000},
	}

	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if err != nil {
			t.Errorf("ParseContentRange(%q): %v", tt.header, err)
			continue
		}
		if start != tt.start || end != tt.end || total != tt.total {
			t.Errorf("ParseContentRange(%q) = (%d, %d, %d), want (%d, %d, %d)",
				tt.header, start, end, total, tt.start, tt.end, tt.total)
		}
	}
}

func TestParseContentRangeInvalid(t *testing.T) {
	for _, header := range []string{"", "items 0-1/2", "bytes 0-1", "bytes */*", "bytes a-b/10", "bytes 5/10"} {
		if _, _, _, err := ParseContentRange(header); err == nil {
			t.Errorf("ParseContentRange(%q): expected error", header)
		}
	}
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(DefaultOptions())
	_, err := client.Get(ctx, server.URL, 0)
	if err == nil {
		t.Fatal("expected error due to context cancellation")
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("caller cancellation must not be reported as a request timeout")
	}
}
