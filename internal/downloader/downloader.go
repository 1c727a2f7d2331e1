package downloader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/juju/ratelimit"

	haulhttp "github.com/ligustah/haul/internal/http"
	"github.com/ligustah/haul/internal/logger"
	"github.com/ligustah/haul/internal/progress"
	"github.com/ligustah/haul/internal/retry"
	"github.com/ligustah/haul/internal/source"
	"github.com/ligustah/haul/internal/transfer"
)

// Item is a single download request.
type Item = transfer.Item

// ErrTempCollision is returned when two items of a batch would share a temp file.
var ErrTempCollision = errors.New("downloader: temp file collision")

// Options configures the downloader.
type Options struct {
	// ConnectTimeout bounds establishing a connection.
	// Default: 2s
	ConnectTimeout time.Duration

	// RequestTimeout bounds the wait for response headers.
	// Default: 60s
	RequestTimeout time.Duration

	// ChunkTimeout bounds each read of a response body.
	// Default: 500ms
	ChunkTimeout time.Duration

	// FlushThreshold is the number of buffered bytes that triggers a write
	// to the temp file.
	// Default: 512KiB
	FlushThreshold int

	// MaxConcurrent is the number of transfers allowed to run at once.
	// Default: 2
	MaxConcurrent int

	// TempDir holds partial downloads. Resuming depends on it surviving
	// between runs.
	// Default: os.TempDir()
	TempDir string

	// Retry is the backoff policy applied to each item.
	// Default: retry.DefaultPolicy()
	Retry retry.Policy

	// Display shows per-item progress. It is waited on at the end of
	// Download, so a Display serves a single Download call.
	// Default: progress.Nop()
	Display progress.Display

	// RateLimit caps the combined transfer rate in bytes per second.
	// Zero means unlimited.
	RateLimit int64

	// Sources configures bucket access, e.g. source.WithBucket.
	Sources []source.Option
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 60 * time.Second,
		ChunkTimeout:   transfer.DefaultChunkTimeout,
		FlushThreshold: transfer.DefaultFlushThreshold,
		MaxConcurrent:  2,
		TempDir:        os.TempDir(),
		Retry:          retry.DefaultPolicy(),
		Display:        progress.Nop(),
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = def.ConnectTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	if o.ChunkTimeout <= 0 {
		o.ChunkTimeout = def.ChunkTimeout
	}
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = def.FlushThreshold
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = def.MaxConcurrent
	}
	if o.TempDir == "" {
		o.TempDir = def.TempDir
	}
	if o.Retry == (retry.Policy{}) {
		o.Retry = def.Retry
	}
	if o.Display == nil {
		o.Display = def.Display
	}
	return o
}

// ItemError reports the item whose failure ended a Download.
type ItemError struct {
	URL  string
	Dest string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("download %s to %s: %v", e.URL, e.Dest, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Downloader fetches batches of items. The HTTP client, bucket sources and
// rate limiter are created once and shared by every transfer.
type Downloader struct {
	opts    Options
	sources *source.Mux
	limiter *ratelimit.Bucket
	log     logger.Logger

	mu    sync.Mutex
	gates map[*gate]struct{}
}

// New creates a Downloader. Zero fields of opts take their defaults.
func New(opts Options) *Downloader {
	opts = opts.withDefaults()

	client := haulhttp.NewClient(haulhttp.Options{
		ConnectTimeout: opts.ConnectTimeout,
		RequestTimeout: opts.RequestTimeout,
	})

	d := &Downloader{
		opts:    opts,
		sources: source.New(client, opts.Sources...),
		log:     logger.New("downloader"),
		gates:   make(map[*gate]struct{}),
	}
	if opts.RateLimit > 0 {
		d.limiter = ratelimit.NewBucketWithRate(float64(opts.RateLimit), opts.RateLimit)
	}
	return d
}

// Download fetches all items, at most MaxConcurrent at a time.
//
// A failing item does not stop the others. Once every item has settled
// the first terminal failure, by time, is returned as *ItemError.
// Destinations and temp paths are checked before anything is fetched.
func Download(ctx context.Context, items []Item, opts Options) error {
	d := New(opts)
	defer d.Close()
	return d.Download(ctx, items)
}

type plan struct {
	item Item
	temp string
}

// Download fetches items. See the package-level Download.
func (d *Downloader) Download(ctx context.Context, items []Item) error {
	defer d.opts.Display.Wait()

	plans, err := d.plan(items)
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		return nil
	}
	if err := os.MkdirAll(d.opts.TempDir, 0o755); err != nil {
		return &transfer.FilesystemError{Op: "mkdir", Path: d.opts.TempDir, Err: err}
	}

	g := d.newGate()
	defer d.closeGate(g)

	d.log.Infof("downloading %d items, %d at a time", len(plans), d.opts.MaxConcurrent)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		first error
	)
	for _, p := range plans {
		wg.Add(1)
		go func(p plan) {
			defer wg.Done()
			if err := d.run(ctx, g, p); err != nil {
				mu.Lock()
				if first == nil {
					first = &ItemError{URL: p.item.URL, Dest: p.item.Dest, Err: err}
				}
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()

	return first
}

// plan validates destinations and assigns temp paths.
func (d *Downloader) plan(items []Item) ([]plan, error) {
	plans := make([]plan, 0, len(items))
	owner := make(map[string]Item, len(items))
	for _, item := range items {
		temp, err := transfer.TempPath(d.opts.TempDir, item.Dest)
		if err != nil {
			return nil, &ItemError{URL: item.URL, Dest: item.Dest, Err: err}
		}
		if prev, ok := owner[temp]; ok {
			return nil, &ItemError{
				URL:  item.URL,
				Dest: item.Dest,
				Err:  fmt.Errorf("%w: %s and %s both use %s", ErrTempCollision, prev.Dest, item.Dest, temp),
			}
		}
		owner[temp] = item
		plans = append(plans, plan{item: item, temp: temp})
	}
	return plans, nil
}

// run downloads one item inside the admission gate.
func (d *Downloader) run(ctx context.Context, g *gate, p plan) error {
	url := p.item.URL
	tracker := progress.NewTracker(d.opts.Display.NewHandle(url), url)
	defer tracker.Close()

	log := logger.NewTransfer()

	release, err := d.admit(ctx, g)
	if err != nil {
		log.Errorf("not admitted: %s: %v", url, err)
		return err
	}
	defer release()

	log.Debugf("started %s -> %s (temp %s)", url, p.item.Dest, p.temp)
	exec := &transfer.Executor{
		Fetcher:        d.sources,
		Item:           p.item,
		TempPath:       p.temp,
		ChunkTimeout:   d.opts.ChunkTimeout,
		FlushThreshold: d.opts.FlushThreshold,
		Limiter:        d.limiter,
		Tracker:        tracker,
		Log:            log,
	}

	driver := retry.New(d.opts.Retry)
	driver.Notify = func(err error, next time.Duration) {
		log.Warningf("attempt failed, retrying in %s: %v", next.Round(time.Millisecond), err)
		tracker.SetStatus(fmt.Sprintf("retrying in %s %s", next.Round(time.Millisecond), url))
	}
	if err := driver.Run(ctx, exec.Attempt); err != nil {
		log.Errorf("failed %s: %v", url, err)
		return err
	}
	return nil
}

// admit acquires a gate slot. A failed admission is retried once.
func (d *Downloader) admit(ctx context.Context, g *gate) (func(), error) {
	release, err := g.Acquire(ctx)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	d.log.Debugf("admission failed, retrying once: %v", err)
	release, err = g.Acquire(ctx)
	if err != nil {
		return nil, &transfer.AdmissionError{Err: err}
	}
	return release, nil
}

func (d *Downloader) newGate() *gate {
	g := newGate(d.opts.MaxConcurrent)
	d.mu.Lock()
	d.gates[g] = struct{}{}
	d.mu.Unlock()
	return g
}

func (d *Downloader) closeGate(g *gate) {
	g.Close()
	d.mu.Lock()
	delete(d.gates, g)
	d.mu.Unlock()
}

// Close stops admitting transfers and releases shared resources.
// Transfers already running are not interrupted; items still waiting for
// a slot fail with *transfer.AdmissionError.
func (d *Downloader) Close() error {
	d.mu.Lock()
	for g := range d.gates {
		g.Close()
	}
	d.mu.Unlock()
	return d.sources.Close()
}
