// Package scheduler drives dispatch sweeps on a cron schedule.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/muaviaUsmani/hearth/internal/dispatch"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/robfig/cron/v3"
)

// Sweeper runs one pass over the due events
type Sweeper interface {
	Sweep(ctx context.Context) (dispatch.SweepResult, error)
}

// Runner fires a sweep at every activation of a cron schedule. Sweeps never
// overlap: an activation that arrives while a sweep is still running is
// skipped.
type Runner struct {
	sweeper Sweeper
	spec    cron.Schedule
	now     func() time.Time
	log     logger.Logger

	sweeps  atomic.Int64
	skipped atomic.Int64
}

// NewRunner creates a runner for the given sweep schedule
func NewRunner(sweeper Sweeper, spec cron.Schedule) *Runner {
	return &Runner{
		sweeper: sweeper,
		spec:    spec,
		now:     time.Now,
		log:     logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// SetClock replaces the clock used to compute activations
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// SetLogger replaces the runner's logger
func (r *Runner) SetLogger(l logger.Logger) {
	r.log = l.WithComponent(logger.ComponentScheduler)
}

// Sweeps returns how many sweeps have completed
func (r *Runner) Sweeps() int64 {
	return r.sweeps.Load()
}

// Skipped returns how many activations were dropped because a sweep was
// still running
func (r *Runner) Skipped() int64 {
	return r.skipped.Load()
}

// Start sweeps once immediately and then on every activation until ctx is
// done. It blocks.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info("Sweep runner started")

	done := make(chan struct{}, 1)
	running := true
	go r.sweep(ctx, done)

	next := r.spec.Next(r.now())
	timer := time.NewTimer(next.Sub(r.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			r.log.Info("Sweep runner stopping")
			return

		case <-done:
			running = false

		case <-timer.C:
			if running {
				r.skipped.Add(1)
				r.log.Warn("Previous sweep still running, skipping activation")
			} else {
				running = true
				go r.sweep(ctx, done)
			}
			next = r.spec.Next(r.now())
			timer.Reset(next.Sub(r.now()))
		}
	}
}

func (r *Runner) sweep(ctx context.Context, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	res, err := r.sweeper.Sweep(ctx)
	r.sweeps.Add(1)
	if err != nil && ctx.Err() == nil {
		r.log.Error("Sweep failed", "error", err)
		return
	}
	if res.Count(dispatch.OutcomeFailed) > 0 {
		r.log.Warn("Sweep finished with failures",
			"due", res.Due,
			"failed", res.Count(dispatch.OutcomeFailed))
	}
}
