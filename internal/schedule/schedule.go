// Package schedule turns periodic jobs into channel ticks so the dispatch
// loop stays the only goroutine that drives the transmitter.
package schedule

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	s      gocron.Scheduler
	logger *zap.SugaredLogger
}

// New creates a stopped Scheduler.
func New(logger *zap.SugaredLogger, opts ...gocron.SchedulerOption) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{s: s, logger: logger}, nil
}

// Every registers a job that posts the current time to the returned channel
// every d. If the previous tick has not been consumed the new one is dropped,
// so a slow consumer sees at most one pending tick.
func (sc *Scheduler) Every(d time.Duration, name string) (<-chan time.Time, error) {
	if d <= 0 {
		return nil, fmt.Errorf("schedule %s: interval must be positive, got %v", name, d)
	}

	ticks := make(chan time.Time, 1)
	j, err := sc.s.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(func() {
			select {
			case ticks <- time.Now():
			default:
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}

	sc.logger.Debugw("job scheduled", "name", name, "every", d, "id", j.ID())
	return ticks, nil
}

// Start begins running registered jobs.
func (sc *Scheduler) Start() {
	sc.s.Start()
}

// Shutdown stops all jobs and waits for running ones to finish.
func (sc *Scheduler) Shutdown() error {
	return sc.s.Shutdown()
}
