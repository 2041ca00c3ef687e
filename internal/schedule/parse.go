package schedule

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

// Field is the request field name reported on validation errors
const Field = "scheduleExpression"

const (
	prefixInterval = "interval:"
	prefixCron     = "cron:"
)

var (
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)

	// maxIntervalSeconds keeps Seconds*time.Second inside time.Duration
	maxIntervalSeconds = int64(math.MaxInt64 / int64(time.Second))
)

// Parse turns a raw schedule expression into an Expression.
// All failures are *errors.ValidationError naming the offending part.
func Parse(raw string) (Expression, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Expression{}, errors.Validation(Field, "Schedule expression is required.")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, prefixInterval):
		return parseInterval(strings.TrimSpace(s[len(prefixInterval):]))
	case strings.HasPrefix(low, prefixCron):
		return parseCron(strings.TrimSpace(s[len(prefixCron):]))
	default:
		return Expression{}, errors.Validation(Field, "Schedule expression must start with 'interval:' or 'cron:'.")
	}
}

// MustParse parses raw and panics on error.
// Useful for expressions fixed at compile time.
func MustParse(raw string) Expression {
	expr, err := Parse(raw)
	if err != nil {
		panic("schedule: " + err.Error())
	}
	return expr
}

func parseInterval(body string) (Expression, error) {
	if !digitsPattern.MatchString(body) {
		return Expression{}, errors.Validation(Field, "Schedule expression must specify a positive interval in seconds.")
	}
	n, err := strconv.ParseInt(body, 10, 64)
	if err != nil || n <= 0 {
		return Expression{}, errors.Validation(Field, "Schedule expression must specify a positive interval in seconds.")
	}
	if n > maxIntervalSeconds {
		return Expression{}, errors.Validation(Field, "Schedule expression interval is too large (max %d seconds).", maxIntervalSeconds)
	}
	return Interval(n), nil
}

func parseCron(body string) (Expression, error) {
	parts := strings.Fields(body)
	if len(parts) != len(cronFields) {
		return Expression{}, errors.Validation(Field,
			"Schedule expression cron pattern must have 5 space-separated fields (minute hour day-of-month month day-of-week), got %d.",
			len(parts))
	}

	values := make([]int, len(cronFields))
	for i, part := range parts {
		v, err := parseCronField(part, cronFields[i])
		if err != nil {
			return Expression{}, err
		}
		values[i] = v
	}

	return Expression{
		Kind: KindCron,
		Cron: CronSpec{
			Minute:     values[0],
			Hour:       values[1],
			DayOfMonth: values[2],
			Month:      values[3],
			DayOfWeek:  values[4],
		},
	}, nil
}

func parseCronField(part string, f cronField) (int, error) {
	if part == "*" {
		return Wildcard, nil
	}
	if digitsPattern.MatchString(part) {
		if v, err := strconv.Atoi(part); err == nil && v >= f.min && v <= f.max {
			return v, nil
		}
	}
	return 0, errors.Validation(Field,
		"Invalid cron %s field %q in schedule expression: must be * or an integer between %d and %d.",
		f.name, part, f.min, f.max)
}
