package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the text reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to print the aggregate progress line.
	// Default: 500ms
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress lines. It suits output that is
// not a terminal, where redrawing bars is not possible.
type Reporter struct {
	opts Options

	mu       sync.Mutex // guards output and handles
	handles  []*reportHandle
	started  bool
	stopped  bool
	stopCh   chan struct{}
	loopDone chan struct{}

	startTime  time.Time
	lastUpdate time.Time
	lastBytes  int64

	active    atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
}

// NewReporter creates a new text reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:     opts,
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// NewHandle registers a transfer and starts the update loop on first use.
func (r *Reporter) NewHandle(name string) Handle {
	h := &reportHandle{r: r, name: name}
	h.total.Store(-1)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
	r.active.Add(1)
	if !r.started && !r.stopped {
		r.started = true
		r.startTime = time.Now()
		r.lastUpdate = r.startTime
		go r.updateLoop()
	}
	fmt.Fprintf(r.opts.Output, "[haul] Downloading: %s\n", name)
	return h
}

// Wait stops the update loop and prints the final summary.
func (r *Reporter) Wait() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	if started {
		close(r.stopCh)
		<-r.loopDone
	}
}

func (r *Reporter) updateLoop() {
	defer close(r.loopDone)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// totals sums current and known totals over all handles.
// If any handle has an unknown total, known is false.
func (r *Reporter) totals() (current, total int64, known bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	known = true
	for _, h := range r.handles {
		current += h.current.Load()
		t := h.total.Load()
		if t <= 0 {
			known = false
			continue
		}
		total += t
	}
	return current, total, known
}

func (r *Reporter) printProgress() {
	now := time.Now()
	current, total, known := r.totals()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(current-r.lastBytes) / elapsed
	r.lastUpdate = now
	r.lastBytes = current

	var percent float64
	eta := "unknown"
	if known && total > 0 {
		percent = float64(current) / float64(total) * 100
		if speed > 0 {
			eta = formatDuration(time.Duration(float64(total-current) / speed * float64(time.Second)))
		} else {
			eta = "calculating..."
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, "[haul] Progress: %.1f%% | %s / %s | Speed: %s/s | ETA: %s\n",
		percent,
		FormatBytes(current),
		FormatBytes(total),
		FormatBytes(int64(speed)),
		eta,
	)
	fmt.Fprintf(r.opts.Output, "[haul] Items: %d completed | %d active | %d failed\n",
		r.completed.Load(),
		r.active.Load(),
		r.failed.Load(),
	)
}

func (r *Reporter) printFinalStatus() {
	current, _, _ := r.totals()
	duration := time.Since(r.startTime)
	avgSpeed := float64(current) / duration.Seconds()

	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, "[haul] Items: %d completed | %d failed\n",
		r.completed.Load(),
		r.failed.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[haul] Total: %s in %s | Average speed: %s/s\n",
		FormatBytes(current),
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

func (r *Reporter) event(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.opts.Output, "[haul] %s\n", msg)
}

type reportHandle struct {
	r    *Reporter
	name string

	total   atomic.Int64
	current atomic.Int64
	status  atomic.Value // string
	done    atomic.Bool
}

func (h *reportHandle) SetTotal(total int64) {
	if !h.done.Load() {
		h.total.Store(total)
	}
}

func (h *reportHandle) SetCurrent(current int64) {
	if !h.done.Load() {
		h.current.Store(current)
	}
}

func (h *reportHandle) SetStatus(msg string) {
	if !h.done.Load() {
		h.status.Store(msg)
	}
}

func (h *reportHandle) Finish(msg string) {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.r.active.Add(-1)
	h.r.completed.Add(1)
	h.r.event(msg)
}

func (h *reportHandle) Abandon(msg string) {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.r.active.Add(-1)
	h.r.failed.Add(1)
	h.r.event(msg)
}
