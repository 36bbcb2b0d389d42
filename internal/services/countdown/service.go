// Package countdown provides an observable delay.
package countdown

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStep is the interval between progress callbacks.
const DefaultStep = time.Second

// Service defines the interface for delay operations.
type Service interface {
	Wait(ctx context.Context, total time.Duration, onTick func(remaining time.Duration)) error
}

// Clock wraps time.After for mocking.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Impl implements the countdown Service interface.
type Impl struct {
	clock  Clock
	step   time.Duration
	logger zerolog.Logger
}

// New creates a new countdown service ticking once per second.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		clock:  realClock{},
		step:   DefaultStep,
		logger: logger,
	}
}

// NewWithClock creates a new countdown service with a custom clock and step (for testing).
func NewWithClock(logger zerolog.Logger, clock Clock, step time.Duration) *Impl {
	if step <= 0 {
		step = DefaultStep
	}
	return &Impl{
		clock:  clock,
		step:   step,
		logger: logger,
	}
}

// Wait blocks for total. onTick, if set, receives the remaining time
// before every step and a final zero once the delay has elapsed.
// Cancelling ctx ends the wait early with ctx.Err().
func (s *Impl) Wait(ctx context.Context, total time.Duration, onTick func(remaining time.Duration)) error {
	tick := func(remaining time.Duration) {
		if onTick != nil {
			onTick(remaining)
		}
	}

	s.logger.Debug().Dur("total", total).Dur("step", s.step).Msg("countdown started")

	remaining := total
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		tick(remaining)

		step := s.step
		if remaining < step {
			step = remaining
		}

		select {
		case <-ctx.Done():
			s.logger.Debug().Dur("remaining", remaining).Msg("countdown cancelled")
			return ctx.Err()
		case <-s.clock.After(step):
		}

		remaining -= step
	}

	tick(0)
	return nil
}
