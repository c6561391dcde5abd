package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
)

// Policy says how often, and how far apart, to try something that may
// take a while to come good.
//
// InitialDelay -- how long to wait before the first attempt
// Interval     -- how long to wait between attempts
// MaxAttempts  -- how many attempts to make in total (at least one is
//                 always made)
type Policy struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// ExhaustedError is returned when every attempt allowed has failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Cause() error {
	return e.Last
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

type stopError struct {
	error
}

// Stop wraps an error so that Do returns it at once, rather than
// trying again.
func Stop(err error) error {
	return stopError{err}
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Do calls fn until it succeeds, returns an error wrapped with Stop,
// or has been called as many times as the policy allows, whichever is
// first. Attempts are numbered from 1. Waiting is done on clock, so
// tests can move time along; if ctx is done while waiting, Do returns
// straight away.
func (p Policy) Do(ctx context.Context, clock clockwork.Clock, fn func(ctx context.Context, attempt int) error) error {
	max := p.attempts()
	wait := p.InitialDelay
	var last error
	for attempt := 1; attempt <= max; attempt++ {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "waiting for attempt %d", attempt)
			case <-clock.After(wait):
			}
		}
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		if stop, ok := err.(stopError); ok {
			return stop.error
		}
		last = err
		wait = p.Interval
	}
	return &ExhaustedError{Attempts: max, Last: last}
}
