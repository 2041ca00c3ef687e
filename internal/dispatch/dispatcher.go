// Package dispatch runs handlers for due events and advances their schedules.
package dispatch

import (
	"context"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/metrics"
)

// Outcome describes what a sweep did with one event
type Outcome string

const (
	OutcomeRan       Outcome = "ran"
	OutcomeFailed    Outcome = "failed"
	OutcomeLocked    Outcome = "locked"
	OutcomeUnhandled Outcome = "unhandled"
	OutcomeStale     Outcome = "stale"
)

// SweepResult summarizes one Sweep
type SweepResult struct {
	Due      int
	Outcomes map[string]Outcome // event ID -> outcome
}

// Count returns how many events ended with outcome o
func (r SweepResult) Count(o Outcome) int {
	n := 0
	for _, got := range r.Outcomes {
		if got == o {
			n++
		}
	}
	return n
}

// Dispatcher finds due events and runs their handlers. Several dispatchers
// may share a store; a per-event lock keeps each run to one process.
type Dispatcher struct {
	registry *Registry
	events   *event.Store
	store    kv.Store
	lockTTL  time.Duration
	metrics  *metrics.Collector
	log      logger.Logger
}

// NewDispatcher creates a dispatcher over events, using store for run locks
func NewDispatcher(registry *Registry, events *event.Store, store kv.Store) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		events:   events,
		store:    store,
		lockTTL:  60 * time.Second,
		metrics:  metrics.Default(),
		log:      logger.Default().WithComponent(logger.ComponentDispatch),
	}
}

// SetLockTTL sets the per-event lock TTL (for testing or tuning)
func (d *Dispatcher) SetLockTTL(ttl time.Duration) {
	d.lockTTL = ttl
}

// SetMetrics replaces the metrics collector
func (d *Dispatcher) SetMetrics(c *metrics.Collector) {
	d.metrics = c
}

// SetLogger replaces the dispatcher's logger
func (d *Dispatcher) SetLogger(l logger.Logger) {
	d.log = l.WithComponent(logger.ComponentDispatch)
}

// Sweep runs every event due at the store's current time, earliest first.
// Handler failures are logged and leave the event due, so the next sweep
// tries again. Events without a handler are left for out-of-band callers.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	now := d.events.Now()
	due, err := d.events.Due(ctx, now)
	if err != nil {
		d.log.ErrorContext(ctx, "Failed to list due events", "error", err)
		return SweepResult{}, err
	}

	res := SweepResult{Due: len(due), Outcomes: make(map[string]Outcome, len(due))}
	for _, ev := range due {
		if ctx.Err() != nil {
			break
		}
		res.Outcomes[ev.ID] = d.dispatch(ctx, ev, now)
	}

	d.metrics.RecordSweep(len(due), now)
	if len(due) > 0 {
		d.log.InfoContext(ctx, "Sweep finished",
			"due", len(due),
			"ran", res.Count(OutcomeRan),
			"failed", res.Count(OutcomeFailed),
			"unhandled", res.Count(OutcomeUnhandled))
	}
	return res, ctx.Err()
}

func (d *Dispatcher) dispatch(ctx context.Context, ev *event.Event, now time.Time) Outcome {
	ctx = logger.ContextWithEvent(ctx, ev.ID, ev.TaskType)

	handler, ok := d.registry.Get(ev.TaskType)
	if !ok {
		d.log.DebugContext(ctx, "No handler for task type, leaving event due")
		return OutcomeUnhandled
	}

	lock, err := kv.AcquireLock(ctx, d.store, "lock:event:"+ev.ID, d.lockTTL)
	if err != nil {
		d.log.ErrorContext(ctx, "Failed to acquire event lock", "error", err)
		return OutcomeFailed
	}
	if lock == nil {
		d.log.DebugContext(ctx, "Event already locked by another instance")
		return OutcomeLocked
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			d.log.ErrorContext(ctx, "Failed to release event lock", "error", err)
		}
	}()

	// another process may have run it between Due and the lock
	current, err := d.events.Get(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return OutcomeStale
		}
		d.log.ErrorContext(ctx, "Failed to reload event", "error", err)
		return OutcomeFailed
	}
	if next, err := current.NextRunTime(); err != nil || next.After(now) {
		return OutcomeStale
	}

	d.metrics.RecordRunStarted(current.TaskType)
	start := time.Now()
	nextRun, err := d.run(ctx, handler, current)
	duration := time.Since(start)

	if err != nil {
		d.metrics.RecordRunFailed(duration)
		var pe *errors.PanicError
		if errors.As(err, &pe) {
			d.log.ErrorContext(ctx, "Handler panicked", "panic", errors.FormatPanicForLog(pe))
		} else {
			d.log.ErrorContext(ctx, "Handler failed", "duration", duration, "error", err)
		}
		return OutcomeFailed
	}

	executed := d.events.Now()
	if nextRun.IsZero() {
		_, err = d.events.RecordRun(ctx, current.ID, executed)
	} else {
		_, err = d.events.Reschedule(ctx, current.ID, executed, nextRun)
	}
	if err != nil {
		d.metrics.RecordRunFailed(duration)
		d.log.ErrorContext(ctx, "Handler succeeded but recording the run failed", "error", err)
		return OutcomeFailed
	}

	d.metrics.RecordRunCompleted(duration)
	d.log.InfoContext(ctx, "Event ran", "duration", duration)
	return OutcomeRan
}

// run invokes handler, converting a panic into a *errors.PanicError
func (d *Dispatcher) run(ctx context.Context, handler HandlerFunc, ev *event.Event) (next time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, err = time.Time{}, errors.RecoverPanic(r)
		}
	}()
	return handler(ctx, ev)
}
