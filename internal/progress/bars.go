package progress

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Bars renders one terminal progress bar per transfer.
type Bars struct {
	p *mpb.Progress
}

// NewBars returns a Display drawing to w.
func NewBars(w io.Writer) *Bars {
	return &Bars{
		p: mpb.New(
			mpb.WithOutput(w),
			mpb.WithWidth(40),
		),
	}
}

// NewHandle adds a bar. Its total is unknown until the first SetTotal.
func (b *Bars) NewHandle(name string) Handle {
	h := &barHandle{}
	h.status.Store(name)
	h.bar = b.p.AddBar(0,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string {
				return h.status.Load().(string)
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
	)
	return h
}

// Wait blocks until all bars are complete or aborted.
func (b *Bars) Wait() {
	b.p.Wait()
}

type barHandle struct {
	bar    *mpb.Bar
	status atomic.Value // string

	once sync.Once
	done atomic.Bool
}

func (h *barHandle) SetTotal(total int64) {
	if h.done.Load() {
		return
	}
	h.bar.SetTotal(total, false)
}

func (h *barHandle) SetCurrent(current int64) {
	if h.done.Load() {
		return
	}
	h.bar.SetCurrent(current)
}

func (h *barHandle) SetStatus(msg string) {
	if h.done.Load() {
		return
	}
	h.status.Store(msg)
}

func (h *barHandle) Finish(msg string) {
	h.once.Do(func() {
		h.status.Store(msg)
		h.done.Store(true)
		h.bar.SetTotal(-1, true)
	})
}

func (h *barHandle) Abandon(msg string) {
	h.once.Do(func() {
		h.status.Store(msg)
		h.done.Store(true)
		h.bar.Abort(false)
	})
}
