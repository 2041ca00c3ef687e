package event

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
	"github.com/muaviaUsmani/hearth/internal/schedule"
	"github.com/muaviaUsmani/hearth/internal/serialization"
)

const (
	// eventKeyPrefix namespaces one key per event
	eventKeyPrefix = "event:"
	// indexKey is the set of all event IDs
	indexKey = "events"
)

// ResourceName is the resource reported in NotFoundError
const ResourceName = "Event"

// Store persists events in a kv.Store: one record per event plus an index
// set of IDs. Writes to the record and the index are separate operations,
// so List may briefly miss a new event or include a cancelled one.
type Store struct {
	kv     kv.Store
	codec  *serialization.Serializer
	now    func() time.Time
	logger logger.Logger
}

// NewStore creates an event store. A nil codec writes JSON.
func NewStore(store kv.Store, codec *serialization.Serializer) *Store {
	if codec == nil {
		codec = serialization.NewJSONSerializer()
	}
	return &Store{
		kv:     store,
		codec:  codec,
		now:    time.Now,
		logger: logger.Default().WithComponent(logger.ComponentStore),
	}
}

// SetClock replaces the clock used for "now"
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// SetLogger replaces the store's logger
func (s *Store) SetLogger(l logger.Logger) {
	s.logger = l.WithComponent(logger.ComponentStore)
}

// Now returns the store clock's current time, truncated to the second
func (s *Store) Now() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

// Ping checks that the underlying store is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}

func eventKey(id string) string {
	return eventKeyPrefix + id
}

// Create validates req, computes the first run from now and persists the event
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Event, error) {
	taskType := strings.TrimSpace(req.TaskType)
	if taskType == "" {
		return nil, errors.Validation("taskType", "Task type is required.")
	}

	raw := strings.TrimSpace(req.ScheduleExpression)
	expr, err := schedule.Parse(raw)
	if err != nil {
		return nil, err
	}

	at := s.now()
	now := at.UTC().Truncate(time.Second)

	next, err := schedule.NextRun(expr, now)
	if err != nil {
		return nil, err
	}
	nextISO, err := FormatISO(next)
	if err != nil {
		return nil, err
	}
	createdISO, err := FormatISO(now)
	if err != nil {
		return nil, err
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}

	ev := &Event{
		ID:                 NewID(at),
		TaskType:           taskType,
		ScheduleExpression: raw,
		Payload:            payload,
		IsRecurring:        req.Recurring(),
		NextRunAt:          nextISO,
		CreatedAt:          createdISO,
	}

	if err := s.save(ctx, ev); err != nil {
		return nil, err
	}
	if err := s.kv.SetAdd(ctx, indexKey, ev.ID); err != nil {
		return nil, errors.Internal("index event", err)
	}

	s.logger.InfoContext(ctx, "Event created",
		logger.FieldEventID, ev.ID,
		logger.FieldTaskType, ev.TaskType,
		"schedule", ev.ScheduleExpression,
		"next_run", ev.NextRunAt)

	return ev, nil
}

// Get returns the event with id. Malformed and unknown IDs both yield a
// NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	if !ValidID(id) {
		return nil, errors.NotFound(ResourceName, id)
	}

	data, err := s.kv.Get(ctx, eventKey(id))
	if err == kv.ErrNotFound {
		return nil, errors.NotFound(ResourceName, id)
	}
	if err != nil {
		return nil, errors.Internal("load event", err)
	}

	var ev Event
	if err := s.codec.Unmarshal(data, &ev); err != nil {
		return nil, errors.Internal("decode event", err)
	}
	return &ev, nil
}

// List returns every indexed event ordered by ID (creation order).
// Index entries whose record has gone are skipped and pruned.
func (s *Store) List(ctx context.Context) ([]*Event, error) {
	ids, err := s.kv.SetMembers(ctx, indexKey)
	if err != nil {
		return nil, errors.Internal("list event index", err)
	}
	sort.Slice(ids, func(i, j int) bool { return Less(ids[i], ids[j]) })

	events := make([]*Event, 0, len(ids))
	for _, id := range ids {
		ev, err := s.Get(ctx, id)
		switch {
		case err == nil:
			events = append(events, ev)
		case errors.Is(err, errors.ErrNotFound):
			s.prune(ctx, id)
		case errors.Is(err, errors.ErrInternal) && !isUnreachable(err):
			// a single undecodable record should not hide the rest
			s.logger.WarnContext(ctx, "Skipping unreadable event", logger.FieldEventID, id, "error", err)
		default:
			return nil, err
		}
	}
	return events, nil
}

// Cancel removes the event and its index entry
func (s *Store) Cancel(ctx context.Context, id string) error {
	if !ValidID(id) {
		return errors.NotFound(ResourceName, id)
	}

	existed, err := s.kv.Delete(ctx, eventKey(id))
	if err != nil {
		return errors.Internal("delete event", err)
	}
	if err := s.kv.SetRemove(ctx, indexKey, id); err != nil {
		return errors.Internal("unindex event", err)
	}
	if !existed {
		return errors.NotFound(ResourceName, id)
	}

	s.logger.InfoContext(ctx, "Event cancelled", logger.FieldEventID, id)
	return nil
}

// RecordRun marks an execution at executedAt. Recurring events get their
// next run recomputed from executedAt and are returned; one-shot events are
// deleted and (nil, nil) is returned.
func (s *Store) RecordRun(ctx context.Context, id string, executedAt time.Time) (*Event, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !ev.IsRecurring {
		if err := s.Cancel(ctx, id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		s.logger.InfoContext(ctx, "One-shot event completed", logger.FieldEventID, id)
		return nil, nil
	}

	expr, err := schedule.Parse(ev.ScheduleExpression)
	if err != nil {
		return nil, errors.Internal("parse stored schedule", err)
	}

	executed := executedAt.UTC().Truncate(time.Second)
	next, err := schedule.NextRun(expr, executed)
	if err != nil {
		return nil, err
	}
	return s.markRun(ctx, ev, executed, next)
}

// Reschedule records a run at executedAt and sets an explicit next run.
// It serves tasks that compute their own next instant; the stored
// expression becomes the equivalent interval so that the record stays
// self-consistent.
func (s *Store) Reschedule(ctx context.Context, id string, executedAt, nextRunAt time.Time) (*Event, error) {
	executed := executedAt.UTC().Truncate(time.Second)
	next := nextRunAt.UTC().Truncate(time.Second)
	if !next.After(executed) {
		return nil, errors.Validation("nextRunAtIso", "Next run must be after the execution time.")
	}

	ev, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ev.ScheduleExpression = schedule.Interval(int64(next.Sub(executed) / time.Second)).String()
	return s.markRun(ctx, ev, executed, next)
}

// Due returns events whose next run is at or before now, earliest first
func (s *Store) Due(ctx context.Context, now time.Time) ([]*Event, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	due := make([]*Event, 0)
	for _, ev := range all {
		next, err := ev.NextRunTime()
		if err != nil {
			s.logger.WarnContext(ctx, "Event has invalid next run", logger.FieldEventID, ev.ID, "error", err)
			continue
		}
		if !next.After(now) {
			due = append(due, ev)
		}
	}
	SortByNextRun(due)
	return due, nil
}

// SortByNextRun orders events by next run, ties broken by ID
func SortByNextRun(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].NextRunAt != events[j].NextRunAt {
			// fixed-width UTC layout sorts lexically
			return events[i].NextRunAt < events[j].NextRunAt
		}
		return Less(events[i].ID, events[j].ID)
	})
}

func (s *Store) markRun(ctx context.Context, ev *Event, executed, next time.Time) (*Event, error) {
	lastISO, err := FormatISO(executed)
	if err != nil {
		return nil, err
	}
	nextISO, err := FormatISO(next)
	if err != nil {
		return nil, err
	}

	ev.LastRunAt = lastISO
	ev.NextRunAt = nextISO
	if err := s.save(ctx, ev); err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "Event rescheduled",
		logger.FieldEventID, ev.ID,
		"last_run", ev.LastRunAt,
		"next_run", ev.NextRunAt)
	return ev, nil
}

func (s *Store) save(ctx context.Context, ev *Event) error {
	data, err := s.codec.Marshal(ev)
	if err != nil {
		return errors.Internal("encode event", err)
	}
	if err := s.kv.Set(ctx, eventKey(ev.ID), data); err != nil {
		return errors.Internal("store event", err)
	}
	return nil
}

func (s *Store) prune(ctx context.Context, id string) {
	if err := s.kv.SetRemove(ctx, indexKey, id); err != nil {
		s.logger.WarnContext(ctx, "Failed to prune index entry", logger.FieldEventID, id, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "Pruned dangling index entry", logger.FieldEventID, id)
}

// isUnreachable reports whether err came from the store itself rather than
// from decoding a record
func isUnreachable(err error) bool {
	var ie *errors.InternalError
	return errors.As(err, &ie) && ie.Op == "load event"
}

