// Package schedule parses schedule expressions and computes next run times.
//
// Two forms are supported:
//
//	interval:<seconds>   - run every N seconds, e.g. "interval:60"
//	cron:<m h dom mon dow> - standard 5-field pattern where each field is
//	                       either "*" or a single integer, e.g. "cron:0 9 * * 1"
//
// Lists, ranges and steps are not part of the grammar.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which variant an Expression holds
type Kind int

const (
	// KindInterval repeats every fixed number of seconds
	KindInterval Kind = iota + 1
	// KindCron matches a 5-field cron pattern
	KindCron
)

// Wildcard marks a cron field written as "*"
const Wildcard = -1

// String returns the expression prefix for the kind
func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindCron:
		return "cron"
	default:
		return "unknown"
	}
}

// CronSpec holds the five cron fields. Each is Wildcard or an explicit value.
type CronSpec struct {
	Minute     int
	Hour       int
	DayOfMonth int
	Month      int
	DayOfWeek  int // 0 = Sunday
}

// Expression is a parsed schedule expression
type Expression struct {
	Kind Kind
	// Seconds is set for KindInterval
	Seconds int64
	// Cron is set for KindCron
	Cron CronSpec
}

// Interval returns an interval expression for the given number of seconds
func Interval(seconds int64) Expression {
	return Expression{Kind: KindInterval, Seconds: seconds}
}

// String re-serializes the expression in its canonical textual form
func (e Expression) String() string {
	switch e.Kind {
	case KindInterval:
		return "interval:" + strconv.FormatInt(e.Seconds, 10)
	case KindCron:
		fields := []int{e.Cron.Minute, e.Cron.Hour, e.Cron.DayOfMonth, e.Cron.Month, e.Cron.DayOfWeek}
		parts := make([]string, len(fields))
		for i, v := range fields {
			if v == Wildcard {
				parts[i] = "*"
			} else {
				parts[i] = strconv.Itoa(v)
			}
		}
		return "cron:" + strings.Join(parts, " ")
	default:
		return fmt.Sprintf("<invalid schedule kind %d>", int(e.Kind))
	}
}

// cronField describes one position in a cron pattern
type cronField struct {
	name string
	min  int
	max  int
}

var cronFields = [5]cronField{
	{name: "minute", min: 0, max: 59},
	{name: "hour", min: 0, max: 23},
	{name: "day-of-month", min: 1, max: 31},
	{name: "month", min: 1, max: 12},
	{name: "day-of-week", min: 0, max: 6},
}
