// Package downloader fetches batches of files concurrently.
//
// Each item names a source URL and a local destination. Sources are plain
// HTTP(S) URLs or bucket URLs (s3://, gs://, azblob://, file://, mem://),
// routed through the source package. Every transfer writes into a temp file
// named after the destination's base name, so an interrupted run leaves a
// partial file behind that the next run resumes with a range request.
//
// # Usage
//
//	err := downloader.Download(ctx, []downloader.Item{
//	    {URL: "https://example.com/a.iso", Dest: "/srv/images/a.iso"},
//	    {URL: "s3://bucket/b.tar?region=eu-west-1", Dest: "/srv/b.tar"},
//	}, downloader.Options{
//	    MaxConcurrent: 4,
//	    TempDir:       "/var/tmp/haul",
//	})
//
// # Concurrency
//
// All items start at once but wait at an admission gate that lets at most
// MaxConcurrent transfers run. A transfer holds its slot across retries and
// releases it when it settles.
//
// # Failures
//
// Each transfer is retried with exponential backoff while its failures are
// transient (timeouts, dropped connections, 5xx and 429 responses). Fatal
// failures such as 404, permission errors or a digest mismatch end the item
// immediately. A failed item does not cancel the rest of the batch; once
// all items have settled, the earliest failure is returned as *ItemError.
//
// # Shutdown
//
// Cancelling the context aborts running transfers. Data already received is
// flushed to the temp file first. Downloader.Close stops admitting new
// transfers without interrupting the running ones.
package downloader
