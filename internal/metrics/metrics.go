package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the global metrics collector instance
var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks engine-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	eventsCreated   atomic.Int64
	eventsCancelled atomic.Int64
	runsStarted     atomic.Int64
	runsCompleted   atomic.Int64
	runsFailed      atomic.Int64
	sweeps          atomic.Int64
	modeSwitches    atomic.Int64

	// Breakdowns (protected by mutex)
	mu               sync.RWMutex
	runsByTaskType   map[string]int64
	requestsByStatus map[int]int64
	lastDue          int64
	lastSweep        time.Time
	totalDuration    time.Duration
	startTime        time.Time
	errorCount       int64
	operationCount   int64
}

// Metrics represents a snapshot of current engine metrics
type Metrics struct {
	EventsCreated    int64            `json:"events_created"`
	EventsCancelled  int64            `json:"events_cancelled"`
	RunsStarted      int64            `json:"runs_started"`
	RunsCompleted    int64            `json:"runs_completed"`
	RunsFailed       int64            `json:"runs_failed"`
	Sweeps           int64            `json:"sweeps"`
	ModeSwitches     int64            `json:"mode_switches"`
	RunsByTaskType   map[string]int64 `json:"runs_by_task_type"`
	RequestsByStatus map[int]int64    `json:"requests_by_status"`
	LastSweepDue     int64            `json:"last_sweep_due"`
	LastSweepAt      *time.Time       `json:"last_sweep_at,omitempty"`
	AvgRunDuration   time.Duration    `json:"avg_run_duration"`
	ErrorRate        float64          `json:"error_rate"`
	Uptime           time.Duration    `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		runsByTaskType:   make(map[string]int64),
		requestsByStatus: make(map[int]int64),
		startTime:        time.Now(),
	}
}

// RecordEventCreated counts a newly stored event
func (c *Collector) RecordEventCreated() {
	c.eventsCreated.Add(1)
}

// RecordEventCancelled counts a cancelled event
func (c *Collector) RecordEventCancelled() {
	c.eventsCancelled.Add(1)
}

// RecordRunStarted counts a handler invocation for taskType
func (c *Collector) RecordRunStarted(taskType string) {
	c.runsStarted.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runsByTaskType[taskType]++
}

// RecordRunCompleted records a successful run
func (c *Collector) RecordRunCompleted(duration time.Duration) {
	c.runsCompleted.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.operationCount++
}

// RecordRunFailed records a run whose handler returned an error or panicked
func (c *Collector) RecordRunFailed(duration time.Duration) {
	c.runsFailed.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.operationCount++
	c.errorCount++
}

// RecordSweep records one dispatcher pass and how many events were due
func (c *Collector) RecordSweep(due int, at time.Time) {
	c.sweeps.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastDue = int64(due)
	c.lastSweep = at
}

// RecordModeSwitch counts an applied mode change
func (c *Collector) RecordModeSwitch() {
	c.modeSwitches.Add(1)
}

// RecordRequest counts an API response by status code
func (c *Collector) RecordRequest(status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestsByStatus[status]++
}

// GetMetrics returns a snapshot of current metrics
func (c *Collector) GetMetrics() Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	runsByTaskType := make(map[string]int64, len(c.runsByTaskType))
	for k, v := range c.runsByTaskType {
		runsByTaskType[k] = v
	}

	requestsByStatus := make(map[int]int64, len(c.requestsByStatus))
	for k, v := range c.requestsByStatus {
		requestsByStatus[k] = v
	}

	var avgDuration time.Duration
	if c.operationCount > 0 {
		avgDuration = c.totalDuration / time.Duration(c.operationCount)
	}

	var errorRate float64
	if c.operationCount > 0 {
		errorRate = float64(c.errorCount) / float64(c.operationCount) * 100
	}

	var lastSweep *time.Time
	if !c.lastSweep.IsZero() {
		t := c.lastSweep
		lastSweep = &t
	}

	return Metrics{
		EventsCreated:    c.eventsCreated.Load(),
		EventsCancelled:  c.eventsCancelled.Load(),
		RunsStarted:      c.runsStarted.Load(),
		RunsCompleted:    c.runsCompleted.Load(),
		RunsFailed:       c.runsFailed.Load(),
		Sweeps:           c.sweeps.Load(),
		ModeSwitches:     c.modeSwitches.Load(),
		RunsByTaskType:   runsByTaskType,
		RequestsByStatus: requestsByStatus,
		LastSweepDue:     c.lastDue,
		LastSweepAt:      lastSweep,
		AvgRunDuration:   avgDuration,
		ErrorRate:        errorRate,
		Uptime:           time.Since(c.startTime),
	}
}

// Reset clears all metrics (useful for testing)
func (c *Collector) Reset() {
	c.eventsCreated.Store(0)
	c.eventsCancelled.Store(0)
	c.runsStarted.Store(0)
	c.runsCompleted.Store(0)
	c.runsFailed.Store(0)
	c.sweeps.Store(0)
	c.modeSwitches.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.runsByTaskType = make(map[string]int64)
	c.requestsByStatus = make(map[int]int64)
	c.lastDue = 0
	c.lastSweep = time.Time{}
	c.totalDuration = 0
	c.startTime = time.Now()
	c.errorCount = 0
	c.operationCount = 0
}

// GetMetrics returns metrics from the global collector
func GetMetrics() Metrics {
	return Default().GetMetrics()
}

// ResetMetrics resets the global collector
func ResetMetrics() {
	Default().Reset()
}
