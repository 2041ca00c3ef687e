package automode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/muaviaUsmani/hearth/internal/event"
	"github.com/muaviaUsmani/hearth/internal/kv"
	"github.com/muaviaUsmani/hearth/internal/logger"
)

// TaskType is the task type of the recurring event that drives mode switches
const TaskType = "mode-switch"

const (
	configKey = "automode:config"
	modeKey   = "automode:mode"
	lockKey   = "lock:automode"
)

// SwitchFunc is notified when the applied mode changes
type SwitchFunc func(ctx context.Context, from, to Mode)

// Manager owns the process-wide auto-mode config and the single mode-switch
// event. The config is swapped atomically and mirrored to the kv store so
// that every process sees the same windows.
type Manager struct {
	cfg    atomic.Pointer[Config]
	kv     kv.Store
	events *event.Store
	logger logger.Logger
	now    func() time.Time

	lockTTL      time.Duration
	lockAttempts int
	lockBackoff  time.Duration

	mu        sync.Mutex
	listeners []SwitchFunc
}

// NewManager creates a manager holding DefaultConfig until Init or Update
func NewManager(store kv.Store, events *event.Store) *Manager {
	m := &Manager{
		kv:           store,
		events:       events,
		logger:       logger.Default().WithComponent(logger.ComponentAutoMode),
		now:          time.Now,
		lockTTL:      10 * time.Second,
		lockAttempts: 20,
		lockBackoff:  50 * time.Millisecond,
	}
	m.cfg.Store(DefaultConfig())
	return m
}

// SetClock replaces the clock used to resolve the current mode
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// SetLogger replaces the manager's logger
func (m *Manager) SetLogger(l logger.Logger) {
	m.logger = l.WithComponent(logger.ComponentAutoMode)
}

// OnSwitch registers fn to run after each applied mode change
func (m *Manager) OnSwitch(fn SwitchFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Config returns a copy of the current config
func (m *Manager) Config() *Config {
	return m.cfg.Load().Clone()
}

// Status evaluates the current config at the manager's clock
func (m *Manager) Status() Status {
	return Evaluate(m.cfg.Load(), m.now())
}

// Init loads the startup config. A config from a file wins and is
// persisted; otherwise the stored copy is used if present. The mode-switch
// event is then (re)scheduled.
func (m *Manager) Init(ctx context.Context, fromFile *Config) error {
	if fromFile != nil {
		return m.Update(ctx, fromFile)
	}

	stored, err := m.loadStored(ctx)
	if err != nil {
		return err
	}
	if stored != nil {
		m.cfg.Store(stored)
	}
	_, err = m.EnsureScheduled(ctx)
	return err
}

// Update validates and replaces the whole config, persists it and
// reschedules the mode-switch event
func (m *Manager) Update(ctx context.Context, cfg *Config) error {
	next := cfg.Clone()
	next.Normalize()
	if err := next.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(next)
	if err != nil {
		return errors.Internal("encode auto-mode config", err)
	}
	if err := m.kv.Set(ctx, configKey, data); err != nil {
		return errors.Internal("store auto-mode config", err)
	}
	m.cfg.Store(next)

	m.logger.InfoContext(ctx, "Auto-mode config updated",
		"enabled", next.Enabled,
		"windows", len(next.TimeWindows),
		"timezone", next.Timezone)

	_, err = m.EnsureScheduled(ctx)
	return err
}

// Reload refreshes the in-memory config from the store copy and reports
// whether it changed
func (m *Manager) Reload(ctx context.Context) (bool, error) {
	stored, err := m.loadStored(ctx)
	if err != nil || stored == nil {
		return false, err
	}

	cur, _ := json.Marshal(m.cfg.Load())
	upd, _ := json.Marshal(stored)
	if bytes.Equal(cur, upd) {
		return false, nil
	}
	m.cfg.Store(stored)
	m.logger.DebugContext(ctx, "Auto-mode config reloaded from store")
	return true, nil
}

func (m *Manager) loadStored(ctx context.Context) (*Config, error) {
	data, err := m.kv.Get(ctx, configKey)
	if err == kv.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Internal("load auto-mode config", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Internal("decode auto-mode config", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Internal("stored auto-mode config is invalid", err)
	}
	return cfg, nil
}

// EnsureScheduled makes sure exactly one mode-switch event exists and that
// it fires at the next boundary of the current config
func (m *Manager) EnsureScheduled(ctx context.Context) (*event.Event, error) {
	lock, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			m.logger.Warn("Failed to release auto-mode lock", "error", err)
		}
	}()

	all, err := m.events.List(ctx)
	if err != nil {
		return nil, err
	}

	now := m.events.Now()
	boundary := NextBoundary(m.cfg.Load(), now)
	want, err := event.FormatISO(boundary)
	if err != nil {
		return nil, err
	}

	var keep *event.Event
	for _, ev := range all {
		if ev.TaskType != TaskType {
			continue
		}
		if keep == nil && ev.NextRunAt == want {
			keep = ev
			continue
		}
		if err := m.events.Cancel(ctx, ev.ID); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
	}
	if keep != nil {
		return keep, nil
	}

	secs := int64(boundary.Sub(now) / time.Second)
	if boundary.Sub(now)%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}

	ev, err := m.events.Create(ctx, event.CreateRequest{
		TaskType:           TaskType,
		ScheduleExpression: fmt.Sprintf("interval:%d", secs),
		Payload:            map[string]interface{}{"managedBy": "automode"},
	})
	if err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "Mode switch scheduled",
		logger.FieldEventID, ev.ID,
		"next_boundary", ev.NextRunAt)
	return ev, nil
}

// acquire takes the auto-mode lock, retrying briefly while another process
// holds it
func (m *Manager) acquire(ctx context.Context) (*kv.Lock, error) {
	for attempt := 0; attempt < m.lockAttempts; attempt++ {
		lock, err := kv.AcquireLock(ctx, m.kv, lockKey, m.lockTTL)
		if err != nil {
			return nil, errors.Internal("acquire auto-mode lock", err)
		}
		if lock != nil {
			return lock, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.lockBackoff):
		}
	}
	return nil, errors.Internal("acquire auto-mode lock", fmt.Errorf("lock busy after %d attempts", m.lockAttempts))
}

// Handle runs the mode-switch task: it applies the mode in effect now and
// returns the next boundary, at which the event should fire again
func (m *Manager) Handle(ctx context.Context, ev *event.Event) (time.Time, error) {
	if _, err := m.Reload(ctx); err != nil {
		m.logger.WarnContext(ctx, "Using in-memory auto-mode config", "error", err)
	}

	cfg := m.cfg.Load()
	now := m.now()
	mode := ResolveMode(cfg, now)

	prev, err := m.AppliedMode(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if prev != mode {
		if err := m.kv.Set(ctx, modeKey, []byte(mode)); err != nil {
			return time.Time{}, errors.Internal("store applied mode", err)
		}
		m.logger.InfoContext(ctx, "Mode switched", "from", string(prev), "to", string(mode))
		m.notify(ctx, prev, mode)
	}

	return NextBoundary(cfg, now), nil
}

// AppliedMode returns the mode most recently applied by Handle, or "" if
// none has been applied yet
func (m *Manager) AppliedMode(ctx context.Context) (Mode, error) {
	data, err := m.kv.Get(ctx, modeKey)
	if err == kv.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", errors.Internal("load applied mode", err)
	}
	return Mode(data), nil
}

func (m *Manager) notify(ctx context.Context, from, to Mode) {
	m.mu.Lock()
	listeners := append([]SwitchFunc(nil), m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, from, to)
	}
}
