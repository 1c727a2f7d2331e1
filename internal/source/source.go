package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	haulhttp "github.com/ligustah/haul/internal/http"
)

// bucketSchemes are served from object storage instead of HTTP.
var bucketSchemes = map[string]bool{
	"s3":     true,
	"gs":     true,
	"azblob": true,
	"mem":    true,
	"file":   true,
}

// IsBucketURL reports whether rawURL names an object in a bucket.
func IsBucketURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && bucketSchemes[u.Scheme]
}

// Option configures a Mux.
type Option func(*Mux)

// WithBucket serves bucketURL from b instead of opening it. The Mux does
// not close b.
func WithBucket(bucketURL string, b *blob.Bucket) Option {
	return func(m *Mux) {
		m.buckets[bucketURL] = b
		m.borrowed[bucketURL] = true
	}
}

// Mux routes http and https URLs to an HTTP client and bucket URLs to
// gocloud blob range readers. Both kinds of source produce the same
// *haulhttp.Response and *haulhttp.StatusError values.
type Mux struct {
	http *haulhttp.Client

	mu       sync.Mutex
	buckets  map[string]*blob.Bucket
	borrowed map[string]bool
}

// New returns a Mux using client for HTTP sources.
func New(client *haulhttp.Client, opts ...Option) *Mux {
	m := &Mux{
		http:     client,
		buckets:  make(map[string]*blob.Bucket),
		borrowed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get opens rawURL at offset.
func (m *Mux) Get(ctx context.Context, rawURL string, offset int64) (*haulhttp.Response, error) {
	u, err := url.Parse(rawURL)
	if err == nil && bucketSchemes[u.Scheme] {
		return m.getObject(ctx, u, offset)
	}
	return m.http.Get(ctx, rawURL, offset)
}

// Close closes the buckets opened by the Mux.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for key, b := range m.buckets {
		if m.borrowed[key] {
			continue
		}
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("source: close bucket %s: %w", key, err)
		}
		delete(m.buckets, key)
	}
	return firstErr
}

// SplitBucketURL splits an object URL into a bucket URL and an object key.
// For file URLs the key is the base name and the bucket is its directory.
// For other schemes the host names the bucket and the path is the key.
func SplitBucketURL(rawURL string) (bucketURL, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", haulhttp.ErrInvalidURL, err)
	}
	return splitBucketURL(u)
}

func splitBucketURL(u *url.URL) (bucketURL, key string, err error) {
	if u.Scheme == "file" {
		dir, name := path.Split(u.Path)
		if name == "" {
			return "", "", fmt.Errorf("%w: no object in %q", haulhttp.ErrInvalidURL, u.String())
		}
		b := url.URL{Scheme: u.Scheme, Host: u.Host, Path: dir, RawQuery: u.RawQuery}
		return b.String(), name, nil
	}

	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("%w: want %s://bucket/key, got %q", haulhttp.ErrInvalidURL, u.Scheme, u.String())
	}
	b := url.URL{Scheme: u.Scheme, Host: u.Host, RawQuery: u.RawQuery}
	return b.String(), key, nil
}

func (m *Mux) bucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[bucketURL]; ok {
		return b, nil
	}
	b, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	m.buckets[bucketURL] = b
	return b, nil
}

func (m *Mux) getObject(ctx context.Context, u *url.URL, offset int64) (*haulhttp.Response, error) {
	bucketURL, key, err := splitBucketURL(u)
	if err != nil {
		return nil, err
	}
	b, err := m.bucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("%w: open bucket: %v", haulhttp.ErrInvalidURL, err)
	}

	if offset > 0 {
		attrs, err := b.Attributes(ctx, key)
		if err != nil {
			return nil, m.objectError(ctx, u, err)
		}
		if offset >= attrs.Size {
			return nil, &haulhttp.StatusError{
				Code:   http.StatusRequestedRangeNotSatisfiable,
				Status: statusText(http.StatusRequestedRangeNotSatisfiable),
				Header: http.Header{"Content-Range": {fmt.Sprintf("bytes */%d", attrs.Size)}},
			}
		}
	}

	r, err := b.NewRangeReader(ctx, key, offset, -1, nil)
	if err != nil {
		return nil, m.objectError(ctx, u, err)
	}

	size := r.Size()
	header := http.Header{}
	if mod := r.ModTime(); !mod.IsZero() {
		header.Set("Last-Modified", mod.UTC().Format(http.TimeFormat))
	}
	status := http.StatusOK
	if offset > 0 {
		status = http.StatusPartialContent
		header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, size-1, size))
	}

	return &haulhttp.Response{
		StatusCode:    status,
		Header:        header,
		ContentLength: size - offset,
		Body:          r,
	}, nil
}

// ObjectError is a bucket failure. It unwraps to both the underlying
// error and the equivalent *haulhttp.StatusError.
type ObjectError struct {
	URL  string
	Code gcerrors.ErrorCode
	Err  error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("source: %s: %v", e.URL, e.Err)
}

func (e *ObjectError) Unwrap() []error {
	code := statusFor(e.Code)
	return []error{
		e.Err,
		&haulhttp.StatusError{Code: code, Status: statusText(code), Header: http.Header{}},
	}
}

func (m *Mux) objectError(ctx context.Context, u *url.URL, err error) error {
	if ctx.Err() != nil {
		return err
	}
	return &ObjectError{URL: u.String(), Code: gcerrors.Code(err), Err: err}
}

// statusFor maps bucket error codes onto HTTP statuses so bucket and HTTP
// sources classify alike.
func statusFor(code gcerrors.ErrorCode) int {
	switch code {
	case gcerrors.NotFound:
		return http.StatusNotFound
	case gcerrors.PermissionDenied:
		return http.StatusForbidden
	case gcerrors.InvalidArgument:
		return http.StatusBadRequest
	case gcerrors.ResourceExhausted:
		return http.StatusTooManyRequests
	case gcerrors.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusServiceUnavailable
	}
}

func statusText(code int) string {
	return fmt.Sprintf("%d %s", code, http.StatusText(code))
}
