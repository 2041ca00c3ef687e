package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerMode defines which due events a scheduler process dispatches
type SchedulerMode string

const (
	// SchedulerModeAll runs every registered handler, including mode-switch
	SchedulerModeAll SchedulerMode = "all"

	// SchedulerModeTaskSpecialized runs only the listed task types
	// Use for: isolating slow handlers in their own process
	SchedulerModeTaskSpecialized SchedulerMode = "task-specialized"
)

// sweepParser accepts standard 5-field specs and descriptors like "@every 5s"
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// SchedulerConfig holds configuration for the scheduler (dispatcher) process
type SchedulerConfig struct {
	// Mode determines which task types are dispatched
	Mode SchedulerMode

	// SweepSchedule is the robfig/cron spec that triggers a sweep for due
	// events. Default: "@every 5s"
	SweepSchedule string

	// LockTTL bounds how long one process may hold an event while its
	// handler runs. Default: 60s
	LockTTL time.Duration

	// TaskTypes lists the task types to dispatch in task-specialized mode
	TaskTypes []string
}

// LoadSchedulerConfig loads scheduler configuration from environment variables
func LoadSchedulerConfig() (*SchedulerConfig, error) {
	cfg := &SchedulerConfig{
		Mode:          SchedulerMode(strings.ToLower(getEnv("SCHEDULER_MODE", string(SchedulerModeAll)))),
		SweepSchedule: getEnv("SWEEP_SCHEDULE", "@every 5s"),
		LockTTL:       getEnvAsDuration("SWEEP_LOCK_TTL", 60*time.Second),
		TaskTypes:     getEnvAsStringSlice("SCHEDULER_TASK_TYPES", nil),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the scheduler configuration is valid
func (c *SchedulerConfig) Validate() error {
	switch c.Mode {
	case SchedulerModeAll:
	case SchedulerModeTaskSpecialized:
		if len(c.TaskTypes) == 0 {
			return fmt.Errorf("task-specialized mode requires at least one task type to be specified")
		}
	default:
		return fmt.Errorf("invalid scheduler mode: %s (must be one of: all, task-specialized)", c.Mode)
	}

	for _, tt := range c.TaskTypes {
		if strings.TrimSpace(tt) == "" {
			return fmt.Errorf("task type cannot be empty")
		}
	}

	if _, err := sweepParser.Parse(c.SweepSchedule); err != nil {
		return fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", c.SweepSchedule, err)
	}

	if c.LockTTL < time.Second {
		return fmt.Errorf("sweep lock TTL too short: %v (minimum 1s)", c.LockTTL)
	}
	return nil
}

// SweepSpec returns the parsed sweep schedule
func (c *SchedulerConfig) SweepSpec() (cron.Schedule, error) {
	return sweepParser.Parse(c.SweepSchedule)
}

// ShouldDispatch reports whether this process handles taskType
func (c *SchedulerConfig) ShouldDispatch(taskType string) bool {
	if c.Mode != SchedulerModeTaskSpecialized {
		return true
	}
	for _, tt := range c.TaskTypes {
		if tt == taskType {
			return true
		}
	}
	return false
}

// String returns a human-readable description of the scheduler config
func (c *SchedulerConfig) String() string {
	taskTypes := "all"
	if c.Mode == SchedulerModeTaskSpecialized {
		if len(c.TaskTypes) <= 3 {
			taskTypes = strings.Join(c.TaskTypes, ",")
		} else {
			taskTypes = fmt.Sprintf("%s... (%d types)", strings.Join(c.TaskTypes[:3], ","), len(c.TaskTypes))
		}
	}

	return fmt.Sprintf(
		"SchedulerConfig{mode=%s, sweep=%q, lockTTL=%v, taskTypes=%s}",
		c.Mode, c.SweepSchedule, c.LockTTL, taskTypes,
	)
}
