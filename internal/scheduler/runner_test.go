package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/muaviaUsmani/hearth/internal/dispatch"
	"github.com/robfig/cron/v3"
)

// every activates at a fixed sub-second period, which cron's own @every
// cannot express
type every time.Duration

func (e every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

type countingSweeper struct {
	calls atomic.Int64
	block chan struct{}
	err   error
}

func (s *countingSweeper) Sweep(ctx context.Context) (dispatch.SweepResult, error) {
	s.calls.Add(1)
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return dispatch.SweepResult{}, ctx.Err()
		}
	}
	return dispatch.SweepResult{Outcomes: map[string]dispatch.Outcome{}}, s.err
}

func runFor(t *testing.T, r *Runner, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Start(ctx)
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(d + 2*time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}

func TestRunner_SweepsOnSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	r := NewRunner(sweeper, every(10*time.Millisecond))

	runFor(t, r, 200*time.Millisecond)

	if got := sweeper.calls.Load(); got < 5 {
		t.Errorf("sweep count too low: got %d, want >= 5", got)
	}
	if r.Sweeps() != sweeper.calls.Load() {
		t.Errorf("Sweeps mismatch: got %d, want %d", r.Sweeps(), sweeper.calls.Load())
	}
	if r.Skipped() != 0 {
		t.Errorf("Skipped mismatch: got %d, want 0", r.Skipped())
	}
}

func TestRunner_SweepsImmediately(t *testing.T) {
	sweeper := &countingSweeper{}
	spec, err := cron.ParseStandard("@hourly")
	if err != nil {
		t.Fatalf("ParseStandard failed: %v", err)
	}
	r := NewRunner(sweeper, spec)

	runFor(t, r, 50*time.Millisecond)

	if got := sweeper.calls.Load(); got != 1 {
		t.Errorf("sweep count mismatch: got %d, want 1", got)
	}
}

func TestRunner_SkipsOverlappingActivations(t *testing.T) {
	sweeper := &countingSweeper{block: make(chan struct{})}
	r := NewRunner(sweeper, every(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(stopped)
	}()

	time.Sleep(100 * time.Millisecond)
	if got := sweeper.calls.Load(); got != 1 {
		t.Errorf("overlapping sweeps started: got %d calls, want 1", got)
	}
	if r.Skipped() == 0 {
		t.Error("expected skipped activations while the sweep was blocked")
	}

	close(sweeper.block)
	time.Sleep(50 * time.Millisecond)
	if got := sweeper.calls.Load(); got < 2 {
		t.Errorf("runner did not resume after the slow sweep: got %d calls", got)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunner_KeepsGoingAfterErrors(t *testing.T) {
	sweeper := &countingSweeper{err: errors.New("store down")}
	r := NewRunner(sweeper, every(10*time.Millisecond))

	runFor(t, r, 100*time.Millisecond)

	if got := sweeper.calls.Load(); got < 3 {
		t.Errorf("runner stopped after a failed sweep: got %d calls", got)
	}
}
