package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
)

// State is the progress of the current attempt.
type State struct {
	// Downloaded counts bytes present in the temp file, including the
	// resumed prefix.
	Downloaded int64

	// Remaining is the content length announced for this attempt,
	// zero if unknown.
	Remaining int64

	StartedAt time.Time
}

// Tracker keeps the State of one transfer and mirrors it onto a Handle.
// State is reset by Start at the beginning of every attempt.
type Tracker struct {
	handle Handle
	url    string

	mu       sync.Mutex
	state    State
	offset   int64
	meter    metrics.Meter
	finished bool
	closed   bool
}

// NewTracker returns a Tracker reporting to h.
func NewTracker(h Handle, url string) *Tracker {
	return &Tracker{
		handle: h,
		url:    url,
		meter:  metrics.NilMeter{},
	}
}

// Start resets the state for a new attempt that begins with downloaded
// bytes already on disk and expects remaining more.
func (t *Tracker) Start(downloaded, remaining int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.meter.Stop()
	t.meter = metrics.NewMeter()
	t.offset = downloaded
	t.state = State{
		Downloaded: downloaded,
		Remaining:  remaining,
		StartedAt:  time.Now(),
	}
	t.handle.SetTotal(downloaded + remaining)
	t.handle.SetCurrent(downloaded)
	t.handle.SetStatus(t.message())
}

// Add records n more bytes received.
func (t *Tracker) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.state.Downloaded += n
	t.meter.Mark(n)
	t.handle.SetCurrent(t.state.Downloaded)
	t.handle.SetStatus(t.message())
}

// SetStatus replaces the status message.
func (t *Tracker) SetStatus(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.handle.SetStatus(msg)
}

// State returns a copy of the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Percent returns the completed percentage of the current attempt,
// truncated to an integer and capped at 100.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent()
}

func (t *Tracker) percent() int {
	total := t.offset + t.state.Remaining
	if total <= 0 {
		return 0
	}
	p := int(float64(t.state.Downloaded) / float64(total) * 100)
	if p > 100 {
		p = 100
	}
	return p
}

// Rate returns the mean transfer rate of the current attempt in bytes per second.
func (t *Tracker) Rate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meter.RateMean()
}

// message renders "<percent>% <url> <rate>/s" using the mean rate of the
// current attempt.
func (t *Tracker) message() string {
	return fmt.Sprintf("%d%% %s %s/s", t.percent(), t.url, FormatBytes(int64(t.meter.RateMean())))
}

// Finish marks the transfer done. Later calls are ignored.
func (t *Tracker) Finish(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.finished = true
	t.closed = true
	t.meter.Stop()
	t.handle.Finish(msg)
}

// Abandon marks the transfer failed. Later calls are ignored.
func (t *Tracker) Abandon(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.meter.Stop()
	t.handle.Abandon(msg)
}

// Finished reports whether Finish was called.
func (t *Tracker) Finished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finished
}

// Close abandons the transfer unless it already finished or was abandoned.
// It is meant to be deferred so every handle receives a terminal update.
func (t *Tracker) Close() {
	t.Abandon("failed " + t.url)
}
