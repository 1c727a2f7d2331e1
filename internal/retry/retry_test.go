package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances only when the driver sleeps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestDriver(p Policy) (*Driver, *[]time.Duration) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	var delays []time.Duration
	d := New(p)
	d.Clock = clock
	d.Sleep = func(ctx context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		clock.advance(dur)
		return ctx.Err()
	}
	return d, &delays
}

func within(t *testing.T, got, base time.Duration, factor float64) {
	t.Helper()
	lo := time.Duration(float64(base)*(1-factor)) - time.Microsecond
	hi := time.Duration(float64(base)*(1+factor)) + time.Microsecond
	assert.True(t, got >= lo && got <= hi, "delay %s outside [%s, %s]", got, lo, hi)
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 500*time.Millisecond, p.InitialInterval)
	assert.Equal(t, 0.15, p.RandomizationFactor)
	assert.Equal(t, 1.5, p.Multiplier)
	assert.Equal(t, 5*time.Second, p.MaxInterval)
	assert.Equal(t, 120*time.Second, p.MaxElapsedTime)
}

func TestRunSucceedsAfterTransientFailures(t *testing.T) {
	d, delays := newTestDriver(DefaultPolicy())

	attempts := 0
	err := d.Run(context.Background(), func(ctx context.Context) Outcome {
		attempts++
		if attempts < 3 {
			return Transient(errors.New("connection reset"))
		}
		return Succeeded()
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.Len(t, *delays, 2)
	within(t, (*delays)[0], 500*time.Millisecond, 0.15)
	within(t, (*delays)[1], 750*time.Millisecond, 0.15)
	assert.LessOrEqual(t, (*delays)[0], (*delays)[1])
}

func TestRunFatalShortCircuits(t *testing.T) {
	d, delays := newTestDriver(DefaultPolicy())
	notFound := errors.New("404 Not Found")

	attempts := 0
	err := d.Run(context.Background(), func(ctx context.Context) Outcome {
		attempts++
		return Permanent(notFound)
	})

	assert.Equal(t, notFound, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, *delays)
}

func TestRunExhaustsElapsedBudget(t *testing.T) {
	d, delays := newTestDriver(DefaultPolicy())
	cause := errors.New("503 Service Unavailable")

	attempts := 0
	err := d.Run(context.Background(), func(ctx context.Context) Outcome {
		attempts++
		return Transient(cause)
	})

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted), "got %v", err)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, attempts, exhausted.Attempts)
	assert.Equal(t, attempts-1, len(*delays))

	// Intervals grow by 1.5x until the 5s cap, each within ±15%.
	base := 500 * time.Millisecond
	var total time.Duration
	for _, got := range *delays {
		within(t, got, base, 0.15)
		total += got
		base = time.Duration(float64(base) * 1.5)
		if base > 5*time.Second {
			base = 5 * time.Second
		}
	}
	assert.Greater(t, total, 120*time.Second)
	assert.Less(t, total-(*delays)[len(*delays)-1], 120*time.Second+time.Nanosecond)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	d := New(DefaultPolicy())
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := d.Run(ctx, func(ctx context.Context) Outcome {
		attempts++
		cancel()
		return Transient(errors.New("timeout"))
	})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, attempts)
}

func TestRunNotify(t *testing.T) {
	d, _ := newTestDriver(DefaultPolicy())
	var notified []error
	d.Notify = func(err error, next time.Duration) {
		notified = append(notified, err)
		assert.Greater(t, next, time.Duration(0))
	}

	attempts := 0
	err := d.Run(context.Background(), func(ctx context.Context) Outcome {
		attempts++
		if attempts == 1 {
			return Transient(errors.New("first"))
		}
		return Succeeded()
	})

	require.NoError(t, err)
	require.Len(t, notified, 1)
	assert.EqualError(t, notified[0], "first")
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "retryable", Retryable.String())
	assert.Equal(t, "fatal", Fatal.String())
}
