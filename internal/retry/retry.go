package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v3"
)

// Class tells the driver what to do after an attempt.
type Class int

const (
	// Success ends the loop without error.
	Success Class = iota
	// Retryable schedules another attempt after a backoff interval.
	Retryable
	// Fatal ends the loop and returns the attempt's error.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Retryable:
		return "retryable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Outcome is the result of one attempt.
type Outcome struct {
	Class Class
	Err   error
}

// Succeeded returns a successful Outcome.
func Succeeded() Outcome { return Outcome{Class: Success} }

// Transient returns a retryable Outcome for err.
func Transient(err error) Outcome { return Outcome{Class: Retryable, Err: err} }

// Permanent returns a fatal Outcome for err.
func Permanent(err error) Outcome { return Outcome{Class: Fatal, Err: err} }

// Policy holds the exponential backoff parameters.
type Policy struct {
	InitialInterval     time.Duration
	RandomizationFactor float64
	Multiplier          float64
	MaxInterval         time.Duration

	// MaxElapsedTime bounds the total time spent retrying. Zero never stops.
	MaxElapsedTime time.Duration
}

// DefaultPolicy returns the policy used for downloads:
// 500ms initial interval, ±15% jitter, 1.5x growth, 5s cap, 120s budget.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.15,
		Multiplier:          1.5,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      120 * time.Second,
	}
}

// NewBackOff returns a fresh, reset backoff for the policy.
func (p Policy) NewBackOff(clock backoff.Clock) *backoff.ExponentialBackOff {
	if clock == nil {
		clock = backoff.SystemClock
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.InitialInterval,
		RandomizationFactor: p.RandomizationFactor,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxInterval,
		MaxElapsedTime:      p.MaxElapsedTime,
		Clock:               clock,
	}
	b.Reset()
	return b
}

// ExhaustedError is returned when the elapsed-time budget runs out while
// attempts keep failing with retryable errors.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Err      error // last retryable error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts in %s: %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Driver runs an attempt function until it succeeds, fails fatally or the
// policy's elapsed budget is exhausted.
type Driver struct {
	Policy Policy

	// Notify, if set, is called before sleeping with the retryable error
	// and the chosen delay.
	Notify func(err error, next time.Duration)

	// Clock and Sleep are replaceable for tests.
	Clock backoff.Clock
	Sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Driver using policy.
func New(policy Policy) *Driver {
	return &Driver{Policy: policy}
}

// Run calls attempt sequentially. Attempts never overlap.
func (d *Driver) Run(ctx context.Context, attempt func(ctx context.Context) Outcome) error {
	b := d.Policy.NewBackOff(d.Clock)
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempts := 1; ; attempts++ {
		out := attempt(ctx)
		switch out.Class {
		case Success:
			return nil
		case Fatal:
			return out.Err
		}

		next := b.NextBackOff()
		if next == backoff.Stop {
			return &ExhaustedError{Attempts: attempts, Elapsed: b.GetElapsedTime(), Err: out.Err}
		}
		if d.Notify != nil {
			d.Notify(out.Err, next)
		}
		if err := sleep(ctx, next); err != nil {
			return fmt.Errorf("retry: %w (last error: %v)", err, out.Err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
