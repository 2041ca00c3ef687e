package status

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/redis/go-redis/v9"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T) (*Aggregator, *event.Store, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	backend := kv.NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "hearth:")
	t.Cleanup(func() { _ = backend.Close() })

	clock := &fakeClock{t: baseTime}
	events := event.NewStore(backend, nil)
	events.SetClock(clock.Now)

	agg := NewAggregator(events)
	agg.SetClock(clock.Now)
	return agg, events, mr, clock
}

func create(t *testing.T, events *event.Store, expr string) *event.Event {
	t.Helper()
	ev, err := events.Create(context.Background(), event.CreateRequest{TaskType: "widget-refresh", ScheduleExpression: expr})
	if err != nil {
		t.Fatalf("Create(%s) failed: %v", expr, err)
	}
	return ev
}

func TestStatus_Empty(t *testing.T) {
	agg, _, _, _ := setup(t)

	r, err := agg.Status(context.Background(), false)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !r.IsHealthy || r.ActiveSchedules != 0 || len(r.NextScheduledEvents) != 0 {
		t.Errorf("report mismatch: %+v", r)
	}
	if r.NextScheduledEvents == nil {
		t.Error("nextScheduledEvents should be an empty list, not null")
	}
	if r.LastUpdatedISO != "2024-01-01T12:00:00Z" {
		t.Errorf("LastUpdatedISO mismatch: got %s", r.LastUpdatedISO)
	}
}

func TestStatus_SortsAndCapsUpcoming(t *testing.T) {
	agg, events, _, _ := setup(t)

	for _, secs := range []int{600, 60, 3600, 30, 120, 900, 45} {
		create(t, events, fmt.Sprintf("interval:%d", secs))
	}

	r, err := agg.Status(context.Background(), true)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if r.ActiveSchedules != 7 {
		t.Errorf("ActiveSchedules mismatch: got %d, want 7", r.ActiveSchedules)
	}
	if len(r.NextScheduledEvents) != DefaultMaxUpcoming {
		t.Fatalf("upcoming count mismatch: got %d, want %d", len(r.NextScheduledEvents), DefaultMaxUpcoming)
	}

	want := []string{
		"2024-01-01T12:00:30Z",
		"2024-01-01T12:00:45Z",
		"2024-01-01T12:01:00Z",
		"2024-01-01T12:02:00Z",
		"2024-01-01T12:10:00Z",
	}
	for i, ev := range r.NextScheduledEvents {
		if ev.NextRunAt != want[i] {
			t.Errorf("upcoming[%d] mismatch: got %s, want %s", i, ev.NextRunAt, want[i])
		}
	}

	agg.SetMaxUpcoming(2)
	r, _ = agg.Status(context.Background(), false)
	if len(r.NextScheduledEvents) != 2 {
		t.Errorf("custom cap not applied: got %d", len(r.NextScheduledEvents))
	}
}

func TestStatus_CacheWindow(t *testing.T) {
	agg, events, _, clock := setup(t)
	ctx := context.Background()

	first, err := agg.Status(ctx, false)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	create(t, events, "interval:60")
	clock.Advance(2 * time.Second)

	cached, _ := agg.Status(ctx, false)
	if cached.ActiveSchedules != 0 || cached.LastUpdatedISO != first.LastUpdatedISO {
		t.Errorf("expected memoized report inside cache window, got %+v", cached)
	}

	forced, _ := agg.Status(ctx, true)
	if forced.ActiveSchedules != 1 {
		t.Errorf("forceRefresh should see the new event, got %d", forced.ActiveSchedules)
	}
	if forced.LastUpdatedISO != "2024-01-01T12:00:02Z" {
		t.Errorf("forceRefresh should produce a fresh timestamp, got %s", forced.LastUpdatedISO)
	}

	create(t, events, "interval:60")
	clock.Advance(DefaultCacheTTL)
	expired, _ := agg.Status(ctx, false)
	if expired.ActiveSchedules != 2 {
		t.Errorf("expected recompute after cache window, got %d", expired.ActiveSchedules)
	}
}

func TestStatus_CachedReportIsACopy(t *testing.T) {
	agg, events, _, _ := setup(t)
	create(t, events, "interval:60")

	r, _ := agg.Status(context.Background(), false)
	r.ActiveSchedules = 99
	r.NextScheduledEvents = nil

	again, _ := agg.Status(context.Background(), false)
	if again.ActiveSchedules != 1 || len(again.NextScheduledEvents) != 1 {
		t.Errorf("cache was mutated through a returned report: %+v", again)
	}
}

func TestStatus_StoreUnreachable(t *testing.T) {
	agg, events, mr, _ := setup(t)
	create(t, events, "interval:60")
	mr.Close()

	r, err := agg.Status(context.Background(), true)
	if err != nil {
		t.Fatalf("unreachable store should not be an error: %v", err)
	}
	if r.IsHealthy || r.ActiveSchedules != 0 || len(r.NextScheduledEvents) != 0 {
		t.Errorf("expected unhealthy report with zero counts, got %+v", r)
	}
	if r.LastUpdatedISO == "" {
		t.Error("unhealthy report should still carry a timestamp")
	}
}

func TestStatus_TimestampFailure(t *testing.T) {
	agg, _, _, clock := setup(t)
	clock.t = time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := agg.Status(context.Background(), true)
	if !errors.Is(err, errors.ErrInternal) {
		t.Fatalf("expected InternalError, got %v", err)
	}
}

func TestStatus_Invalidate(t *testing.T) {
	agg, events, _, _ := setup(t)
	ctx := context.Background()

	_, _ = agg.Status(ctx, false)
	create(t, events, "interval:60")
	agg.Invalidate()

	r, _ := agg.Status(ctx, false)
	if r.ActiveSchedules != 1 {
		t.Errorf("expected recompute after Invalidate, got %d", r.ActiveSchedules)
	}
}
