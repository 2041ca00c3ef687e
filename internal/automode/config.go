// Package automode switches the dashboard's monitoring mode according to
// day-of-week and time-of-day windows.
package automode

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"gopkg.in/yaml.v3"
)

// Mode is a monitoring mode
type Mode string

const (
	ModeCompact Mode = "Compact"
	ModeNav     Mode = "Nav"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeCompact || m == ModeNav
}

// TimeOfDay is a wall-clock time in the config's timezone
type TimeOfDay struct {
	Hour   int `yaml:"hour" json:"hour"`
	Minute int `yaml:"minute" json:"minute"`
}

// Minutes returns minutes since midnight
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// TimeWindow activates Mode on DaysOfWeek between StartTime (inclusive) and
// EndTime (exclusive). StartTime after EndTime spans midnight; equal times
// make an empty window.
type TimeWindow struct {
	Name        string    `yaml:"name" json:"name"`
	Mode        Mode      `yaml:"mode" json:"mode"`
	StartTime   TimeOfDay `yaml:"startTime" json:"startTime"`
	EndTime     TimeOfDay `yaml:"endTime" json:"endTime"`
	DaysOfWeek  []int     `yaml:"daysOfWeek" json:"daysOfWeek"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// Config is the whole auto-mode configuration. It is replaced as a unit.
type Config struct {
	Enabled                   bool         `yaml:"enabled" json:"enabled"`
	TimeWindows               []TimeWindow `yaml:"timeWindows" json:"timeWindows"`
	DefaultMode               Mode         `yaml:"defaultMode" json:"defaultMode"`
	NavModeRefreshSeconds     int          `yaml:"navModeRefreshSeconds" json:"navModeRefreshSeconds"`
	CompactModeRefreshSeconds int          `yaml:"compactModeRefreshSeconds" json:"compactModeRefreshSeconds"`
	// Timezone is an IANA zone name; windows are evaluated in it
	Timezone string `yaml:"timezone" json:"timezone"`
}

const (
	DefaultNavRefreshSeconds     = 30
	DefaultCompactRefreshSeconds = 300
	DefaultTimezone              = "UTC"
)

// DefaultConfig returns a disabled config that always resolves to Compact
func DefaultConfig() *Config {
	return &Config{
		Enabled:                   false,
		TimeWindows:               []TimeWindow{},
		DefaultMode:               ModeCompact,
		NavModeRefreshSeconds:     DefaultNavRefreshSeconds,
		CompactModeRefreshSeconds: DefaultCompactRefreshSeconds,
		Timezone:                  DefaultTimezone,
	}
}

// Normalize fills zero values with defaults so partial configs still work
func (c *Config) Normalize() {
	if c.DefaultMode == "" {
		c.DefaultMode = ModeCompact
	}
	if c.NavModeRefreshSeconds == 0 {
		c.NavModeRefreshSeconds = DefaultNavRefreshSeconds
	}
	if c.CompactModeRefreshSeconds == 0 {
		c.CompactModeRefreshSeconds = DefaultCompactRefreshSeconds
	}
	c.Timezone = strings.TrimSpace(c.Timezone)
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
	if c.TimeWindows == nil {
		c.TimeWindows = []TimeWindow{}
	}
	for i := range c.TimeWindows {
		c.TimeWindows[i].Name = strings.TrimSpace(c.TimeWindows[i].Name)
	}
}

// Validate checks the config, returning a ValidationError naming the first
// offending field
func (c *Config) Validate() error {
	if !c.DefaultMode.Valid() {
		return errors.Validation("defaultMode", "Default mode must be %q or %q, got %q.", ModeCompact, ModeNav, c.DefaultMode)
	}
	if c.NavModeRefreshSeconds <= 0 {
		return errors.Validation("navModeRefreshSeconds", "Nav mode refresh seconds must be a positive integer.")
	}
	if c.CompactModeRefreshSeconds <= 0 {
		return errors.Validation("compactModeRefreshSeconds", "Compact mode refresh seconds must be a positive integer.")
	}
	if _, err := loadLocation(c.Timezone); err != nil {
		return errors.Validation("timezone", "Unknown timezone %q.", c.Timezone)
	}

	names := make(map[string]bool, len(c.TimeWindows))
	for i, w := range c.TimeWindows {
		field := fmt.Sprintf("timeWindows[%d]", i)
		if strings.TrimSpace(w.Name) == "" {
			return errors.Validation(field+".name", "Time window name is required.")
		}
		if names[w.Name] {
			return errors.Validation(field+".name", "Duplicate time window name %q.", w.Name)
		}
		names[w.Name] = true

		if !w.Mode.Valid() {
			return errors.Validation(field+".mode", "Time window %q mode must be %q or %q, got %q.", w.Name, ModeCompact, ModeNav, w.Mode)
		}
		if err := validateTime(field+".startTime", w.StartTime); err != nil {
			return err
		}
		if err := validateTime(field+".endTime", w.EndTime); err != nil {
			return err
		}
		if len(w.DaysOfWeek) == 0 {
			return errors.Validation(field+".daysOfWeek", "Time window %q must list at least one day of week.", w.Name)
		}
		for _, d := range w.DaysOfWeek {
			if d < 0 || d > 6 {
				return errors.Validation(field+".daysOfWeek", "Day of week %d is out of range 0-6.", d)
			}
		}
	}
	return nil
}

func validateTime(field string, t TimeOfDay) error {
	if t.Hour < 0 || t.Hour > 23 {
		return errors.Validation(field+".hour", "Hour %d is out of range 0-23.", t.Hour)
	}
	if t.Minute < 0 || t.Minute > 59 {
		return errors.Validation(field+".minute", "Minute %d is out of range 0-59.", t.Minute)
	}
	return nil
}

// Location returns the config's timezone, UTC if it cannot be loaded
func (c *Config) Location() *time.Location {
	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	out := *c
	out.TimeWindows = make([]TimeWindow, len(c.TimeWindows))
	for i, w := range c.TimeWindows {
		w.DaysOfWeek = append([]int(nil), w.DaysOfWeek...)
		out.TimeWindows[i] = w
	}
	return &out
}

// RefreshSeconds returns the recommended client poll interval for mode
func (c *Config) RefreshSeconds(mode Mode) int {
	if mode == ModeNav {
		return c.NavModeRefreshSeconds
	}
	return c.CompactModeRefreshSeconds
}

var locations sync.Map // name -> *time.Location

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == DefaultTimezone {
		return time.UTC, nil
	}
	if loc, ok := locations.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locations.Store(name, loc)
	return loc, nil
}

// Parse decodes a YAML (or JSON, a subset of YAML) config, normalizes and
// validates it
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse auto-mode config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads and parses the config file at path
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read auto-mode config: %w", err)
	}
	return Parse(data)
}

// SaveFile writes cfg to path as YAML with 0600 permissions
func SaveFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode auto-mode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write auto-mode config: %w", err)
	}
	return nil
}
