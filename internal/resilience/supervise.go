package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Schedule lists the waits between batch restarts. Once exhausted the last
// entry repeats.
type Schedule []time.Duration

// DefaultSchedule is 30s, 2m, 4m, 8m, then 10m forever.
func DefaultSchedule() Schedule {
	return Schedule{
		30 * time.Second,
		2 * time.Minute,
		4 * time.Minute,
		8 * time.Minute,
		10 * time.Minute,
	}
}

// ScheduleFromSecs builds a Schedule from whole seconds. An empty list
// yields the default schedule.
func ScheduleFromSecs(secs []int) Schedule {
	if len(secs) == 0 {
		return DefaultSchedule()
	}
	s := make(Schedule, len(secs))
	for i, n := range secs {
		s[i] = time.Duration(n) * time.Second
	}
	return s
}

// Delay returns the wait after the n-th failure (0-based).
func (s Schedule) Delay(n int) time.Duration {
	if len(s) == 0 {
		return 0
	}
	if n >= len(s) {
		return s[len(s)-1]
	}
	if n < 0 {
		return s[0]
	}
	return s[n]
}

// Supervisor reruns a whole batch until it completes. Batches are resumable,
// so every restart picks up after the last persisted record.
type Supervisor struct {
	Schedule Schedule
	// Sleep waits between attempts; it reports false when ctx ended first.
	Sleep func(ctx context.Context, d time.Duration) bool
}

// NewSupervisor creates a Supervisor with the given schedule.
func NewSupervisor(s Schedule) *Supervisor {
	return &Supervisor{Schedule: s, Sleep: sleep}
}

// Run calls fn until it returns nil or ctx is cancelled. It returns the
// number of failed attempts along with the final error, if any.
func (s *Supervisor) Run(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	wait := s.Sleep
	if wait == nil {
		wait = sleep
	}

	for failures := 0; ; failures++ {
		err := fn(ctx)
		if err == nil {
			return failures, nil
		}
		if ctx.Err() != nil {
			return failures + 1, ctx.Err()
		}

		d := s.Schedule.Delay(failures)
		zap.L().Error("supervisor: batch failed, restarting",
			zap.Int("attempt", failures+1),
			zap.Bool("transient", IsTransient(err)),
			zap.Duration("wait", d),
			zap.Error(err),
		)
		if !wait(ctx, d) {
			return failures + 1, ctx.Err()
		}
	}
}
