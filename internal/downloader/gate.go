package downloader

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrGateClosed is returned by Acquire once the gate is closed.
var ErrGateClosed = errors.New("downloader: admission gate closed")

// gate admits at most n transfers at a time.
type gate struct {
	sem    *semaphore.Weighted
	closed chan struct{}
	once   sync.Once
}

func newGate(n int) *gate {
	return &gate{
		sem:    semaphore.NewWeighted(int64(n)),
		closed: make(chan struct{}),
	}
}

// Acquire blocks until a slot is free. The returned func releases the slot
// and may be called more than once.
func (g *gate) Acquire(ctx context.Context) (func(), error) {
	select {
	case <-g.closed:
		return nil, ErrGateClosed
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-g.closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		select {
		case <-g.closed:
			return nil, ErrGateClosed
		default:
			return nil, err
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.sem.Release(1) })
	}, nil
}

// Close makes pending and future Acquire calls fail with ErrGateClosed.
func (g *gate) Close() {
	g.once.Do(func() { close(g.closed) })
}
