// Package scheduler drives the periodic decision cycles. Ticks are aligned
// to candle close (UTC truncation of the interval) plus a small offset so
// the just-closed candle is already visible on the exchange.
package scheduler

import (
	"context"
	"time"

	"helmsman/internal/logger"
)

type Aligned struct {
	Interval       time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewAligned(interval, offset time.Duration) *Aligned {
	return &Aligned{
		Interval: interval,
		Offset:   offset,
		nowFn:    time.Now,
	}
}

// Run blocks, invoking task on every aligned tick until ctx is cancelled.
// task receives the tick time (the close of the candle that triggered it).
func (s *Aligned) Run(ctx context.Context, task func(now time.Time)) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("scheduler: started interval=%s offset=%s run_immediately=%v",
		s.Interval, s.Offset, s.RunImmediately)

	if s.RunImmediately {
		task(startAt)
	}

	for {
		now := s.nowFn().UTC()
		nextClose, wakeAt, wait := s.nextTimes(now)

		logger.Debugf("scheduler: next candle close=%s, next cycle=%s (in %s)",
			nextClose.Format(time.RFC3339), wakeAt.Format(time.RFC3339), wait.Truncate(time.Second))

		if wait <= 0 {
			task(nextClose)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Infof("scheduler: context done, exit")
			return
		case <-timer.C:
		}
		task(nextClose)
	}
}

func (s *Aligned) nextTimes(now time.Time) (nextClose, wakeAt time.Time, wait time.Duration) {
	now = now.UTC()
	nextClose = now.Truncate(s.Interval).Add(s.Interval)
	wakeAt = nextClose.Add(s.Offset)
	wait = wakeAt.Sub(now)
	return nextClose, wakeAt, wait
}
