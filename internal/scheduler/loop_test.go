package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func instantAfter(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestIntervalLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewIntervalLoop("test", time.Minute)
	loop.afterFn = instantAfter

	calls := 0
	ticks := loop.Run(ctx, func(context.Context) {
		calls++
		if calls == 3 {
			cancel()
		}
	})
	assert.Equal(t, 3, ticks)
	assert.Equal(t, 3, calls)
}

func TestIntervalLoopWaitsBeforeFirstTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	loop := NewIntervalLoop("test", time.Hour)
	loop.RunImmediately = false

	called := false
	ticks := loop.Run(ctx, func(context.Context) { called = true })
	assert.Zero(t, ticks)
	assert.False(t, called)
}

func TestIntervalLoopStopsAtDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	loop := NewIntervalLoop("", time.Hour)

	start := time.Now()
	ticks := loop.Run(ctx, func(context.Context) {})
	assert.Equal(t, 1, ticks)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestParseIntervalDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"60s":   time.Minute,
		"1m30s": 90 * time.Second,
		"1d":    24 * time.Hour,
		"2w":    14 * 24 * time.Hour,
	}
	for in, want := range cases {
		got, ok := ParseIntervalDuration(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "0s", "-5m", "3x", "d"} {
		_, ok := ParseIntervalDuration(bad)
		assert.False(t, ok, bad)
	}
}
