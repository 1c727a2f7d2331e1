package progress

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandle struct {
	mu        sync.Mutex
	total     int64
	current   int64
	status    string
	finished  []string
	abandoned []string
}

func (h *recordingHandle) SetTotal(total int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.total = total
}

func (h *recordingHandle) SetCurrent(current int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = current
}

func (h *recordingHandle) SetStatus(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = msg
}

func (h *recordingHandle) Finish(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, msg)
}

func (h *recordingHandle) Abandon(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.abandoned = append(h.abandoned, msg)
}

func TestTrackerStartAndAdd(t *testing.T) {
	h := &recordingHandle{}
	tr := NewTracker(h, "https://example.com/f")
	defer tr.Close()

	tr.Start(300, 700)
	assert.EqualValues(t, 1000, h.total)
	assert.EqualValues(t, 300, h.current)
	assert.Equal(t, "30% https://example.com/f 0 B/s", h.status)

	tr.Add(200)
	tr.Add(50)
	assert.EqualValues(t, 550, h.current)
	assert.Equal(t, 55, tr.Percent())
	assert.True(t, strings.HasPrefix(h.status, "55% https://example.com/f "), h.status)
	assert.True(t, strings.HasSuffix(h.status, "/s"), h.status)

	st := tr.State()
	assert.EqualValues(t, 550, st.Downloaded)
	assert.EqualValues(t, 700, st.Remaining)
	assert.False(t, st.StartedAt.IsZero())
}

func TestTrackerReportsRate(t *testing.T) {
	h := &recordingHandle{}
	tr := NewTracker(h, "http://x/file.bin")
	defer tr.Close()

	const chunk = 1 << 20
	tr.Start(0, 10*chunk)
	for i := 0; i < 5; i++ {
		time.Sleep(50 * time.Millisecond)
		tr.Add(chunk)
	}

	rate := tr.Rate()
	require.Greater(t, rate, 0.0)
	// 5 MiB over at least 250ms caps the mean rate at 20 MiB/s.
	assert.LessOrEqual(t, rate, float64(20*chunk))

	h.mu.Lock()
	status := h.status
	h.mu.Unlock()
	assert.True(t, strings.HasPrefix(status, "50% http://x/file.bin "), status)
	assert.True(t, strings.HasSuffix(status, "iB/s"), status)
	assert.NotContains(t, status, " 0 B/s")

	// A new attempt starts a fresh meter.
	tr.Start(5*chunk, 5*chunk)
	assert.Zero(t, tr.Rate())
}

func TestTrackerStartResetsState(t *testing.T) {
	h := &recordingHandle{}
	tr := NewTracker(h, "u")
	defer tr.Close()

	tr.Start(0, 100)
	tr.Add(40)

	// A later attempt restarts from the bytes on disk.
	tr.Start(40, 60)
	assert.EqualValues(t, 40, tr.State().Downloaded)
	assert.EqualValues(t, 100, h.total)
	assert.Equal(t, 40, tr.Percent())
}

func TestTrackerUnknownLength(t *testing.T) {
	h := &recordingHandle{}
	tr := NewTracker(h, "u")
	defer tr.Close()

	tr.Start(0, 0)
	tr.Add(10)
	assert.Equal(t, 0, tr.Percent())

	tr.Start(5, 0)
	tr.Add(10)
	assert.Equal(t, 100, tr.Percent(), "percent is capped")
}

func TestTrackerCloseAbandonsUnlessFinished(t *testing.T) {
	h := &recordingHandle{}
	tr := NewTracker(h, "u")
	tr.Start(0, 10)
	tr.Close()
	tr.Close()
	require.Len(t, h.abandoned, 1)
	assert.Empty(t, h.finished)

	h = &recordingHandle{}
	tr = NewTracker(h, "u")
	tr.Start(0, 10)
	tr.Add(10)
	tr.Finish("done /tmp/x")
	tr.Close()
	assert.True(t, tr.Finished())
	assert.Equal(t, []string{"done /tmp/x"}, h.finished)
	assert.Empty(t, h.abandoned)

	// Updates after the terminal call are dropped.
	tr.Add(5)
	assert.EqualValues(t, 10, h.current)
}

func TestNopDisplay(t *testing.T) {
	d := Nop()
	h := d.NewHandle("x")
	h.SetTotal(1)
	h.SetCurrent(1)
	h.SetStatus("x")
	h.Finish("x")
	h.Abandon("x")
	d.Wait()
}
