package automode

import "time"

// Status is a snapshot of auto-mode at one instant
type Status struct {
	Enabled                bool
	Mode                   Mode
	ActiveWindow           *TimeWindow
	NextBoundary           time.Time
	RecommendedPollSeconds int
}

// Evaluate resolves the mode at t together with the window that produced
// it, the next change and the poll interval a client should use until then
func Evaluate(cfg *Config, t time.Time) Status {
	mode := ResolveMode(cfg, t)

	var active *TimeWindow
	if w := ActiveWindow(cfg, t); w != nil {
		copied := *w
		active = &copied
	}

	return Status{
		Enabled:                cfg.Enabled,
		Mode:                   mode,
		ActiveWindow:           active,
		NextBoundary:           NextBoundary(cfg, t),
		RecommendedPollSeconds: cfg.RefreshSeconds(mode),
	}
}
