package dispatch

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/metrics"
	"github.com/redis/go-redis/v9"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	dispatcher *Dispatcher
	registry   *Registry
	events     *event.Store
	backend    *kv.RedisStore
	metrics    *metrics.Collector
	clock      *fakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	backend := kv.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "hearth:")
	t.Cleanup(func() { _ = backend.Close() })

	clock := &fakeClock{t: baseTime}
	events := event.NewStore(backend, nil)
	events.SetClock(clock.Now)

	registry := NewRegistry()
	collector := metrics.NewCollector()
	d := NewDispatcher(registry, events, backend)
	d.SetMetrics(collector)

	return &fixture{dispatcher: d, registry: registry, events: events, backend: backend, metrics: collector, clock: clock}
}

func (f *fixture) create(t *testing.T, taskType, expr string, recurring bool) *event.Event {
	t.Helper()
	ev, err := f.events.Create(context.Background(), event.CreateRequest{
		TaskType:           taskType,
		ScheduleExpression: expr,
		IsRecurring:        &recurring,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return ev
}

func TestSweep_RunsDueRecurringEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var calls int
	f.registry.Register("widget-refresh", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		calls++
		return time.Time{}, nil
	})
	ev := f.create(t, "widget-refresh", "interval:60", true)

	// not yet due
	res, err := f.dispatcher.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Due != 0 || calls != 0 {
		t.Fatalf("expected nothing due at creation time, got %+v (calls=%d)", res, calls)
	}

	f.clock.Advance(time.Minute)
	res, err = f.dispatcher.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Due != 1 || res.Outcomes[ev.ID] != OutcomeRan || calls != 1 {
		t.Fatalf("sweep result mismatch: %+v (calls=%d)", res, calls)
	}

	got, err := f.events.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.LastRunAt != "2024-01-01T12:01:00Z" || got.NextRunAt != "2024-01-01T12:02:00Z" {
		t.Errorf("run not recorded: last=%s next=%s", got.LastRunAt, got.NextRunAt)
	}

	m := f.metrics.GetMetrics()
	if m.RunsCompleted != 1 || m.Sweeps != 2 || m.RunsByTaskType["widget-refresh"] != 1 {
		t.Errorf("metrics mismatch: %+v", m)
	}
}

func TestSweep_OneShotEventIsDeleted(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.registry.Register("reminder", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		return time.Time{}, nil
	})
	ev := f.create(t, "reminder", "interval:30", false)

	f.clock.Advance(30 * time.Second)
	if _, err := f.dispatcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if _, err := f.events.Get(ctx, ev.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("expected one-shot event to be deleted, got %v", err)
	}
}

func TestSweep_HandlerChoosesNextRun(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.registry.Register("mode-switch", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		return baseTime.Add(5 * time.Hour), nil
	})
	ev := f.create(t, "mode-switch", "interval:60", true)

	f.clock.Advance(time.Minute)
	if _, err := f.dispatcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	got, _ := f.events.Get(ctx, ev.ID)
	if got.NextRunAt != "2024-01-01T17:00:00Z" {
		t.Errorf("NextRunAt mismatch: got %s", got.NextRunAt)
	}
	// 12:01 -> 17:00
	if got.ScheduleExpression != "interval:17940" {
		t.Errorf("ScheduleExpression mismatch: got %s", got.ScheduleExpression)
	}
}

func TestSweep_FailureLeavesEventDue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.registry.Register("flaky", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		return time.Time{}, fmt.Errorf("upstream unavailable")
	})
	ev := f.create(t, "flaky", "interval:60", true)

	f.clock.Advance(time.Minute)
	res, err := f.dispatcher.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Outcomes[ev.ID] != OutcomeFailed {
		t.Errorf("outcome mismatch: got %s", res.Outcomes[ev.ID])
	}

	got, _ := f.events.Get(ctx, ev.ID)
	if got.NextRunAt != "2024-01-01T12:01:00Z" || got.LastRunAt != "" {
		t.Errorf("failed run must not advance the schedule: %+v", got)
	}

	res, _ = f.dispatcher.Sweep(ctx)
	if res.Due != 1 {
		t.Errorf("expected event to stay due, got %d", res.Due)
	}
	if m := f.metrics.GetMetrics(); m.RunsFailed != 2 || m.ErrorRate != 100 {
		t.Errorf("metrics mismatch: %+v", m)
	}
}

func TestSweep_RecoversFromPanic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.registry.Register("explode", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		panic("boom")
	})
	f.registry.Register("ok", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		return time.Time{}, nil
	})
	bad := f.create(t, "explode", "interval:60", true)
	good := f.create(t, "ok", "interval:60", true)

	f.clock.Advance(time.Minute)
	res, err := f.dispatcher.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Outcomes[bad.ID] != OutcomeFailed {
		t.Errorf("panicking handler outcome mismatch: got %s", res.Outcomes[bad.ID])
	}
	if res.Outcomes[good.ID] != OutcomeRan {
		t.Errorf("other events should still run, got %s", res.Outcomes[good.ID])
	}
}

func TestSweep_UnhandledTaskTypeIsLeftAlone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ev := f.create(t, "reminder-refresh", "interval:60", true)
	f.clock.Advance(time.Minute)

	res, err := f.dispatcher.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if res.Outcomes[ev.ID] != OutcomeUnhandled {
		t.Errorf("outcome mismatch: got %s", res.Outcomes[ev.ID])
	}
	got, _ := f.events.Get(ctx, ev.ID)
	if got.NextRunAt != "2024-01-01T12:01:00Z" {
		t.Errorf("unhandled event must not be touched: %+v", got)
	}
}

func TestSweep_SkipsLockedEvent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var calls int
	f.registry.Register("widget-refresh", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		calls++
		return time.Time{}, nil
	})
	ev := f.create(t, "widget-refresh", "interval:60", true)

	held, err := kv.AcquireLock(ctx, f.backend, "lock:event:"+ev.ID, time.Minute)
	if err != nil || held == nil {
		t.Fatalf("failed to pre-acquire lock: %v", err)
	}

	f.clock.Advance(time.Minute)
	res, _ := f.dispatcher.Sweep(ctx)
	if res.Outcomes[ev.ID] != OutcomeLocked || calls != 0 {
		t.Errorf("expected locked event to be skipped, got %s (calls=%d)", res.Outcomes[ev.ID], calls)
	}

	if err := held.Release(ctx); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	res, _ = f.dispatcher.Sweep(ctx)
	if res.Outcomes[ev.ID] != OutcomeRan || calls != 1 {
		t.Errorf("expected run after release, got %s (calls=%d)", res.Outcomes[ev.ID], calls)
	}
}

func TestSweep_TwoDispatchersRunOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var calls int
	f.registry.Register("widget-refresh", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		calls++
		return time.Time{}, nil
	})
	f.create(t, "widget-refresh", "interval:60", true)
	f.clock.Advance(time.Minute)

	other := NewDispatcher(f.registry, f.events, f.backend)
	other.SetMetrics(metrics.NewCollector())

	if _, err := f.dispatcher.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if _, err := other.Sweep(ctx); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single run across dispatchers, got %d", calls)
	}
}

func TestSweep_ContextCancelled(t *testing.T) {
	f := setup(t)
	f.registry.Register("widget-refresh", func(ctx context.Context, ev *event.Event) (time.Time, error) {
		return time.Time{}, nil
	})
	f.create(t, "widget-refresh", "interval:60", true)
	f.clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.dispatcher.Sweep(ctx); err == nil {
		t.Error("expected an error from a cancelled sweep")
	}
}
