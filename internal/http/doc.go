// Package http provides the HTTP capability used by transfers.
//
// This package handles:
//   - Dialing with a bounded connect timeout
//   - One connection per transfer (no idle pooling)
//   - Ranged GET requests that always carry a Range header
//   - A deadline on the wait for response headers
//   - Content-Range parsing
//
// # Usage
//
//	client := http.NewClient(http.DefaultOptions())
//
//	resp, err := client.Get(ctx, url, offset)
//	if err != nil {
//	    var se *http.StatusError
//	    if errors.As(err, &se) { ... }
//	}
//	defer resp.Body.Close()
package http
