package automode

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

const sampleYAML = `
enabled: true
defaultMode: Compact
navModeRefreshSeconds: 15
timezone: Europe/Berlin
timeWindows:
  - name: morning-commute
    mode: Nav
    startTime: {hour: 7, minute: 30}
    endTime: {hour: 9, minute: 0}
    daysOfWeek: [1, 2, 3, 4, 5]
    description: Traffic and transit boards
  - name: night
    mode: Nav
    startTime: {hour: 22, minute: 0}
    endTime: {hour: 6, minute: 0}
    daysOfWeek: [0, 1, 2, 3, 4, 5, 6]
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if !cfg.Enabled || cfg.DefaultMode != ModeCompact {
		t.Errorf("top-level mismatch: %+v", cfg)
	}
	if cfg.NavModeRefreshSeconds != 15 {
		t.Errorf("NavModeRefreshSeconds mismatch: got %d", cfg.NavModeRefreshSeconds)
	}
	if cfg.CompactModeRefreshSeconds != DefaultCompactRefreshSeconds {
		t.Errorf("CompactModeRefreshSeconds default not applied: got %d", cfg.CompactModeRefreshSeconds)
	}
	if len(cfg.TimeWindows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(cfg.TimeWindows))
	}
	w := cfg.TimeWindows[0]
	if w.Name != "morning-commute" || w.Mode != ModeNav || w.StartTime != (TimeOfDay{7, 30}) || w.EndTime != (TimeOfDay{9, 0}) {
		t.Errorf("window mismatch: %+v", w)
	}
	if w.Description != "Traffic and transit boards" {
		t.Errorf("description mismatch: %q", w.Description)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("location mismatch: %s", cfg.Location())
	}
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"enabled": false, "defaultMode": "Nav", "navModeRefreshSeconds": 10}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.DefaultMode != ModeNav || cfg.Timezone != "UTC" {
		t.Errorf("mismatch: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, _ := Parse([]byte(sampleYAML))
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad default mode", func(c *Config) { c.DefaultMode = "Active" }, "defaultMode"},
		{"zero nav refresh", func(c *Config) { c.NavModeRefreshSeconds = 0 }, "navModeRefreshSeconds"},
		{"negative compact refresh", func(c *Config) { c.CompactModeRefreshSeconds = -1 }, "compactModeRefreshSeconds"},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"empty name", func(c *Config) { c.TimeWindows[0].Name = "" }, "timeWindows[0].name"},
		{"duplicate name", func(c *Config) { c.TimeWindows[1].Name = "morning-commute" }, "timeWindows[1].name"},
		{"bad window mode", func(c *Config) { c.TimeWindows[1].Mode = "Full" }, "timeWindows[1].mode"},
		{"hour out of range", func(c *Config) { c.TimeWindows[0].StartTime.Hour = 24 }, "timeWindows[0].startTime.hour"},
		{"minute out of range", func(c *Config) { c.TimeWindows[0].EndTime.Minute = 60 }, "timeWindows[0].endTime.minute"},
		{"no days", func(c *Config) { c.TimeWindows[0].DaysOfWeek = nil }, "timeWindows[0].daysOfWeek"},
		{"day out of range", func(c *Config) { c.TimeWindows[0].DaysOfWeek = []int{7} }, "timeWindows[0].daysOfWeek"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			var ve *errors.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field mismatch: got %s, want %s", ve.Field, tt.field)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse([]byte("enabled: [oops")); err == nil {
		t.Error("expected YAML syntax error")
	}
	if _, err := Parse([]byte("defaultMode: Loud")); !errors.Is(err, errors.ErrValidation) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

func TestLoadAndSaveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automode.yaml")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for missing file")
	}

	cfg, _ := Parse([]byte(sampleYAML))
	if err := SaveFile(path, cfg); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("permissions mismatch: got %o", info.Mode().Perm())
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "startTime:") {
		t.Errorf("expected camelCase keys in saved YAML:\n%s", data)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(loaded.TimeWindows) != 2 || loaded.TimeWindows[1].Name != "night" || loaded.Timezone != "Europe/Berlin" {
		t.Errorf("loaded mismatch: %+v", loaded)
	}
}

func TestClone(t *testing.T) {
	cfg, _ := Parse([]byte(sampleYAML))
	c := cfg.Clone()
	c.TimeWindows[0].DaysOfWeek[0] = 6
	c.TimeWindows[0].Name = "changed"

	if cfg.TimeWindows[0].DaysOfWeek[0] != 1 || cfg.TimeWindows[0].Name != "morning-commute" {
		t.Error("Clone shares memory with the original")
	}
}

func TestEvaluate(t *testing.T) {
	cfg := morningConfig()
	cfg.NavModeRefreshSeconds = 20

	s := Evaluate(cfg, at(t, "2024-01-01T08:30:00Z"))
	if s.Mode != ModeNav || s.ActiveWindow == nil || s.ActiveWindow.Name != "commute" {
		t.Errorf("status mismatch: %+v", s)
	}
	if s.RecommendedPollSeconds != 20 {
		t.Errorf("poll seconds mismatch: got %d", s.RecommendedPollSeconds)
	}
	if !s.NextBoundary.Equal(at(t, "2024-01-01T09:00:00Z")) {
		t.Errorf("next boundary mismatch: got %s", s.NextBoundary)
	}

	s = Evaluate(cfg, at(t, "2024-01-01T10:00:00Z"))
	if s.Mode != ModeCompact || s.ActiveWindow != nil || s.RecommendedPollSeconds != DefaultCompactRefreshSeconds {
		t.Errorf("status mismatch outside window: %+v", s)
	}
}
