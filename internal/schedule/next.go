package schedule

import (
	"fmt"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

// ScanHorizon bounds the cron search to four (leap) years. Patterns that
// cannot match within it (e.g. day 31 in a fixed 30-day month) fail instead
// of looping forever.
const ScanHorizon = 4 * 366 * 24 * time.Hour

// ErrNoMatch is wrapped when a cron pattern has no match within ScanHorizon
var ErrNoMatch = errors.New("cron pattern has no matching time within scan horizon")

// NextRun computes the next execution instant after from.
//
// Interval expressions return exactly from + Seconds. Cron expressions return
// the first whole minute strictly after from (evaluated in UTC) on which all
// five fields match. The function never reads the wall clock.
func NextRun(expr Expression, from time.Time) (time.Time, error) {
	switch expr.Kind {
	case KindInterval:
		if expr.Seconds <= 0 {
			return time.Time{}, errors.Internal("compute next run", fmt.Errorf("non-positive interval %d", expr.Seconds))
		}
		return from.Add(time.Duration(expr.Seconds) * time.Second), nil
	case KindCron:
		return nextCron(expr.Cron, from)
	default:
		return time.Time{}, errors.Internal("compute next run", fmt.Errorf("unknown schedule kind %d", int(expr.Kind)))
	}
}

// nextCron walks forward from the minute after from. Whole months, days and
// hours that cannot match are skipped at once, which yields the same result
// as testing every minute.
func nextCron(c CronSpec, from time.Time) (time.Time, error) {
	t := from.UTC().Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(ScanHorizon)

	for !t.After(limit) {
		if c.Month != Wildcard && int(t.Month()) != c.Month {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if !c.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
			continue
		}
		if c.Hour != Wildcard && t.Hour() != c.Hour {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, time.UTC)
			continue
		}
		if c.Minute != Wildcard && t.Minute() != c.Minute {
			t = t.Add(time.Minute)
			continue
		}
		return t, nil
	}

	return time.Time{}, errors.Internal("compute next run", ErrNoMatch)
}

func (c CronSpec) dayMatches(t time.Time) bool {
	if c.DayOfMonth != Wildcard && t.Day() != c.DayOfMonth {
		return false
	}
	if c.DayOfWeek != Wildcard && int(t.Weekday()) != c.DayOfWeek {
		return false
	}
	return true
}

// Matches reports whether t (in UTC, at minute granularity) satisfies the pattern
func (c CronSpec) Matches(t time.Time) bool {
	t = t.UTC()
	if c.Minute != Wildcard && t.Minute() != c.Minute {
		return false
	}
	if c.Hour != Wildcard && t.Hour() != c.Hour {
		return false
	}
	if c.Month != Wildcard && int(t.Month()) != c.Month {
		return false
	}
	return c.dayMatches(t)
}
