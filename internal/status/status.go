package status

import (
	"context"
	"sync"
	"time"

	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/logger"
)

const (
	// DefaultCacheTTL is how long a computed report is reused
	DefaultCacheTTL = 5 * time.Second
	// DefaultMaxUpcoming caps nextScheduledEvents
	DefaultMaxUpcoming = 5
)

// Report is a point-in-time summary of the stored schedules
type Report struct {
	IsHealthy           bool           `json:"isHealthy"`
	ActiveSchedules     int            `json:"activeSchedules"`
	NextScheduledEvents []*event.Event `json:"nextScheduledEvents"`
	LastUpdatedISO      string         `json:"lastUpdatedIso"`
}

// Aggregator computes Reports from an event store and memoizes the last
// healthy one for a short window
type Aggregator struct {
	events      *event.Store
	cacheTTL    time.Duration
	maxUpcoming int
	now         func() time.Time
	logger      logger.Logger

	mu       sync.Mutex
	cached   *Report
	cachedAt time.Time
}

// NewAggregator creates an aggregator with the default cache window and cap
func NewAggregator(events *event.Store) *Aggregator {
	return &Aggregator{
		events:      events,
		cacheTTL:    DefaultCacheTTL,
		maxUpcoming: DefaultMaxUpcoming,
		now:         time.Now,
		logger:      logger.Default().WithComponent(logger.ComponentStatus),
	}
}

// SetCacheTTL sets the memoization window. Zero disables caching.
func (a *Aggregator) SetCacheTTL(ttl time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cacheTTL = ttl
	a.cached = nil
}

// SetMaxUpcoming sets how many upcoming events a report lists
func (a *Aggregator) SetMaxUpcoming(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.maxUpcoming = n
	a.cached = nil
}

// SetClock replaces the clock used for timestamps and cache expiry
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// SetLogger replaces the aggregator's logger
func (a *Aggregator) SetLogger(l logger.Logger) {
	a.logger = l.WithComponent(logger.ComponentStatus)
}

// Status returns the current report. forceRefresh skips the cache. An
// unreachable store yields an unhealthy report with zero counts; a
// timestamp that cannot be formatted is returned as an InternalError.
func (a *Aggregator) Status(ctx context.Context, forceRefresh bool) (*Report, error) {
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if !forceRefresh && a.cached != nil && now.Sub(a.cachedAt) < a.cacheTTL && !now.Before(a.cachedAt) {
		return a.cached.copy(), nil
	}

	stamp, err := event.FormatISO(now)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to generate status timestamp", "error", err)
		return nil, err
	}

	all, err := a.events.List(ctx)
	if err != nil {
		a.logger.WarnContext(ctx, "Event store unreachable, reporting unhealthy", "error", err)
		a.cached = nil
		return &Report{
			IsHealthy:           false,
			ActiveSchedules:     0,
			NextScheduledEvents: []*event.Event{},
			LastUpdatedISO:      stamp,
		}, nil
	}

	event.SortByNextRun(all)
	upcoming := all
	if len(upcoming) > a.maxUpcoming {
		upcoming = upcoming[:a.maxUpcoming]
	}

	r := &Report{
		IsHealthy:           true,
		ActiveSchedules:     len(all),
		NextScheduledEvents: append([]*event.Event{}, upcoming...),
		LastUpdatedISO:      stamp,
	}
	if a.cacheTTL > 0 {
		a.cached = r
		a.cachedAt = now
	}

	a.logger.DebugContext(ctx, "Status computed", "active", r.ActiveSchedules, "upcoming", len(r.NextScheduledEvents))
	return r.copy(), nil
}

// Invalidate drops the memoized report so the next call recomputes
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
}

func (r *Report) copy() *Report {
	out := *r
	out.NextScheduledEvents = append([]*event.Event{}, r.NextScheduledEvents...)
	return &out
}
