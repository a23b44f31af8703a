package scheduler

import (
	"context"
	"time"

	"quantsignal/internal/logger"
)

const DefaultInterval = 60 * time.Second

// IntervalLoop 串行执行任务：一次执行结束后等待 Interval 再开始下一次，因此不会重叠。
type IntervalLoop struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	nowFn   func() time.Time
	afterFn func(time.Duration) <-chan time.Time
}

func NewIntervalLoop(name string, interval time.Duration) *IntervalLoop {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &IntervalLoop{
		Name:           name,
		Interval:       interval,
		RunImmediately: true,
		nowFn:          time.Now,
		afterFn:        time.After,
	}
}

// Run blocks until ctx is cancelled. Cancellation is observed at the inter-tick delay;
// a task that is already running is allowed to finish. Returns the number of executed ticks.
func (s *IntervalLoop) Run(ctx context.Context, task func(ctx context.Context)) int {
	if s == nil || task == nil {
		logger.Warnf("IntervalLoop: nothing to run, exit")
		return 0
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	if s.afterFn == nil {
		s.afterFn = time.After
	}
	prefix := "IntervalLoop"
	if s.Name != "" {
		prefix += "[" + s.Name + "]"
	}
	startAt := s.nowFn()
	logger.Infof("%s: started interval=%s run_immediately=%v", prefix, s.Interval, s.RunImmediately)

	ticks := 0
	if !s.RunImmediately && !s.wait(ctx, s.Interval) {
		logger.Infof("%s: ctx done, exit after %d tick(s)", prefix, ticks)
		return ticks
	}
	for {
		if ctx.Err() != nil {
			logger.Infof("%s: ctx done, exit after %d tick(s)", prefix, ticks)
			return ticks
		}
		task(ctx)
		ticks++
		logger.Debugf("%s: tick %d done, next in %s | uptime=%s",
			prefix, ticks, s.Interval, s.nowFn().Sub(startAt).Truncate(time.Second))
		if !s.wait(ctx, s.Interval) {
			logger.Infof("%s: ctx done, exit after %d tick(s)", prefix, ticks)
			return ticks
		}
	}
}

func (s *IntervalLoop) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.afterFn(d):
		return ctx.Err() == nil
	}
}
