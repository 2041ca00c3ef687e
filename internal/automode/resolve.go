package automode

import (
	"sort"
	"time"
)

// BoundaryHorizon bounds how far ahead NextBoundary looks for a mode change
const BoundaryHorizon = 14 * 24 * time.Hour

// DisabledRecheck is returned by NextBoundary when auto-mode is off or no
// change occurs within BoundaryHorizon. It only means "check again later".
const DisabledRecheck = 24 * time.Hour

// activeAt reports whether w covers the wall-clock time local
func (w *TimeWindow) activeAt(local time.Time) bool {
	if !containsDay(w.DaysOfWeek, int(local.Weekday())) {
		return false
	}
	m := local.Hour()*60 + local.Minute()
	start, end := w.StartTime.Minutes(), w.EndTime.Minutes()
	switch {
	case start == end:
		return false
	case start < end:
		return m >= start && m < end
	default:
		// spans midnight
		return m >= start || m < end
	}
}

func containsDay(days []int, d int) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

// ActiveWindow returns the first window, in config order, covering t.
// It returns nil when auto-mode is disabled or no window matches.
func ActiveWindow(cfg *Config, t time.Time) *TimeWindow {
	if !cfg.Enabled {
		return nil
	}
	local := t.In(cfg.Location())
	for i := range cfg.TimeWindows {
		if cfg.TimeWindows[i].activeAt(local) {
			return &cfg.TimeWindows[i]
		}
	}
	return nil
}

// ResolveMode returns the mode in effect at t
func ResolveMode(cfg *Config, t time.Time) Mode {
	if w := ActiveWindow(cfg, t); w != nil {
		return w.Mode
	}
	return cfg.DefaultMode
}

// NextBoundary returns the first instant after t at which ResolveMode
// changes, so that ResolveMode(b-1s) != ResolveMode(b).
//
// Candidates are every window start and end and every local midnight from
// t's local day through BoundaryHorizon, plus any UTC offset transitions in
// that span. Between two consecutive candidates the wall clock advances
// without jumping, so the mode can only change at a candidate. When auto-mode
// is disabled or nothing changes within the horizon, t+DisabledRecheck is
// returned.
func NextBoundary(cfg *Config, t time.Time) time.Time {
	if !cfg.Enabled {
		return t.Add(DisabledRecheck)
	}

	current := ResolveMode(cfg, t)
	for _, c := range candidates(cfg, t) {
		if ResolveMode(cfg, c) != current {
			return c
		}
	}
	return t.Add(DisabledRecheck)
}

// candidates lists boundary candidates after t in ascending order
func candidates(cfg *Config, t time.Time) []time.Time {
	loc := cfg.Location()
	local := t.In(loc)
	limit := t.Add(BoundaryHorizon)

	transitions, shifts := zoneTransitions(local, limit)

	minutes := map[int]bool{0: true}
	for _, w := range cfg.TimeWindows {
		minutes[w.StartTime.Minutes()] = true
		minutes[w.EndTime.Minutes()] = true
	}

	seen := make(map[int64]bool)
	var out []time.Time
	push := func(c time.Time) {
		if !c.After(t) || c.After(limit) {
			return
		}
		key := c.Unix()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, c)
	}

	for _, tr := range transitions {
		push(tr)
	}

	days := int(BoundaryHorizon/(24*time.Hour)) + 1
	y, mo, d := local.Date()
	for day := 0; day <= days; day++ {
		for m := range minutes {
			c := time.Date(y, mo, d+day, m/60, m%60, 0, 0, loc)
			wantY, wantMo, wantD := time.Date(y, mo, d+day, 12, 0, 0, 0, loc).Date()
			// an ambiguous wall time (clocks set back) occurs twice; try
			// both instants and keep those that really show this wall time
			for _, s := range shifts {
				x := c.Add(s)
				lx := x.In(loc)
				ly, lmo, ld := lx.Date()
				if ly == wantY && lmo == wantMo && ld == wantD && lx.Hour()*60+lx.Minute() == m && lx.Second() == 0 {
					push(x)
				}
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// zoneTransitions returns the offset changes of local's zone up to limit and
// the set of shifts (0 and ± each offset delta) used to probe ambiguous
// wall times
func zoneTransitions(local time.Time, limit time.Time) ([]time.Time, []time.Duration) {
	shifts := []time.Duration{0}
	seenShift := map[time.Duration]bool{0: true}
	var transitions []time.Time

	x := local
	for i := 0; i < 64; i++ {
		_, end := x.ZoneBounds()
		if end.IsZero() || end.After(limit) {
			break
		}
		_, before := end.Add(-time.Second).Zone()
		_, after := end.Zone()
		delta := time.Duration(after-before) * time.Second
		if delta < 0 {
			delta = -delta
		}
		for _, s := range []time.Duration{delta, -delta} {
			if !seenShift[s] {
				seenShift[s] = true
				shifts = append(shifts, s)
			}
		}
		transitions = append(transitions, end)
		x = end
	}
	return transitions, shifts
}
