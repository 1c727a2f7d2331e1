// Package source opens download sources by URL scheme.
//
// http and https go through the shared HTTP client. s3, gs, azblob, mem
// and file URLs address objects in gocloud blob buckets: the host names
// the bucket and the path is the object key, e.g.
//
//	s3://my-bucket/path/to/object?region=us-east-1
//
// Range reads from a bucket report 206 like an HTTP server would, and
// bucket errors carry an equivalent HTTP status.
package source
