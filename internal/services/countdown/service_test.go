package countdown

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock fires immediately and records every requested sleep.
type fakeClock struct {
	sleeps  []time.Duration
	onAfter func(n int)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.sleeps = append(c.sleeps, d)
	if c.onAfter != nil {
		c.onAfter(len(c.sleeps))
	}
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func TestWait_SleepsExactlyTotal(t *testing.T) {
	clock := &fakeClock{}
	svc := NewWithClock(testLogger(), clock, time.Second)

	var ticks []time.Duration
	err := svc.Wait(context.Background(), 5*time.Second, func(remaining time.Duration) {
		ticks = append(ticks, remaining)
	})

	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, clock.total())
	assert.Len(t, clock.sleeps, 5)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 4 * time.Second, 3 * time.Second, 2 * time.Second, time.Second, 0,
	}, ticks)
}

func TestWait_PartialLastStep(t *testing.T) {
	clock := &fakeClock{}
	svc := NewWithClock(testLogger(), clock, time.Second)

	err := svc.Wait(context.Background(), 2500*time.Millisecond, nil)

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Second, time.Second, 500 * time.Millisecond}, clock.sleeps)
}

func TestWait_ZeroDelay(t *testing.T) {
	clock := &fakeClock{}
	svc := NewWithClock(testLogger(), clock, time.Second)

	var ticks []time.Duration
	err := svc.Wait(context.Background(), 0, func(remaining time.Duration) {
		ticks = append(ticks, remaining)
	})

	require.NoError(t, err)
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, []time.Duration{0}, ticks)
}

func TestWait_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{
		onAfter: func(n int) {
			if n == 3 {
				cancel()
			}
		},
	}
	svc := NewWithClock(testLogger(), clock, time.Second)

	var ticks []time.Duration
	err := svc.Wait(ctx, 60*time.Second, func(remaining time.Duration) {
		ticks = append(ticks, remaining)
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.LessOrEqual(t, len(clock.sleeps), 4)
	assert.NotContains(t, ticks, time.Duration(0))
}

func TestWait_RealClock(t *testing.T) {
	svc := NewWithClock(testLogger(), realClock{}, 10*time.Millisecond)

	start := time.Now()
	err := svc.Wait(context.Background(), 30*time.Millisecond, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNewWithClock_DefaultStep(t *testing.T) {
	svc := NewWithClock(testLogger(), &fakeClock{}, 0)

	assert.Equal(t, DefaultStep, svc.step)
}
