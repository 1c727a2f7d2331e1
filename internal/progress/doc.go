// Package progress provides progress reporting for transfers.
//
// A Display hands out one Handle per transfer. Three displays exist:
// Bars draws terminal bars, Reporter prints periodic text lines and Nop
// discards everything. A Tracker owns the per-attempt State of one
// transfer and mirrors it onto its Handle.
//
// # Usage
//
//	display := progress.NewBars(os.Stderr)
//	tracker := progress.NewTracker(display.NewHandle(url), url)
//	defer tracker.Close()
//
//	tracker.Start(offset, contentLength)
//	tracker.Add(int64(n))
//	tracker.Finish("done " + dest)
//
//	display.Wait()
//
// # Output Format (Reporter)
//
//	[haul] Downloading: https://example.com/file.tar.gz
//	[haul] Progress: 45.2% | 1.1 GiB / 2.5 GiB | Speed: 120 MiB/s | ETA: 12s
//	[haul] Items: 3 completed | 2 active | 0 failed
package progress
