package schedule

import (
	"math/rand"
	"testing"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test time %q: %v", s, err)
	}
	return ts
}

func TestNextRun_IntervalExact(t *testing.T) {
	from := mustTime(t, "2024-01-01T12:00:00Z").Add(250 * time.Millisecond)

	for _, n := range []int64{1, 60, 3599, 86400} {
		got, err := NextRun(Interval(n), from)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		want := from.Add(time.Duration(n) * time.Second)
		if !got.Equal(want) {
			t.Errorf("NextRun(interval:%d) mismatch: got %v, want %v", n, got, want)
		}
	}
}

func TestNextRun_Cron(t *testing.T) {
	tests := []struct {
		name string
		expr string
		from string
		want string
	}{
		{"every minute", "cron:* * * * *", "2024-01-01T12:00:00Z", "2024-01-01T12:01:00Z"},
		{"every minute mid-minute", "cron:* * * * *", "2024-01-01T12:00:45Z", "2024-01-01T12:01:00Z"},
		{"top of hour", "cron:0 * * * *", "2024-01-01T12:00:00Z", "2024-01-01T13:00:00Z"},
		{"daily later today", "cron:30 18 * * *", "2024-01-01T12:00:00Z", "2024-01-01T18:30:00Z"},
		{"daily tomorrow", "cron:30 8 * * *", "2024-01-01T12:00:00Z", "2024-01-02T08:30:00Z"},
		{"monday 9am from monday noon", "cron:0 9 * * 1", "2024-01-01T12:00:00Z", "2024-01-08T09:00:00Z"},
		{"sunday", "cron:0 0 * * 0", "2024-01-01T12:00:00Z", "2024-01-07T00:00:00Z"},
		{"first of month", "cron:0 0 1 * *", "2024-01-15T00:00:00Z", "2024-02-01T00:00:00Z"},
		{"year rollover", "cron:0 0 1 1 *", "2024-06-01T00:00:00Z", "2025-01-01T00:00:00Z"},
		{"leap day", "cron:0 12 29 2 *", "2024-03-01T00:00:00Z", "2028-02-29T12:00:00Z"},
		{"dom and dow both fixed", "cron:0 0 13 * 5", "2024-01-01T00:00:00Z", "2024-09-13T00:00:00Z"},
		{"non-utc input", "cron:0 9 * * *", "2024-01-01T08:30:00+01:00", "2024-01-01T09:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextRun(MustParse(tt.expr), mustTime(t, tt.from))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			want := mustTime(t, tt.want)
			if !got.Equal(want) {
				t.Errorf("NextRun(%s, %s) mismatch: got %v, want %v", tt.expr, tt.from, got.UTC(), want)
			}
		})
	}
}

func TestNextRun_CronImpossible(t *testing.T) {
	for _, expr := range []string{"cron:0 0 31 2 *", "cron:0 0 30 2 *", "cron:0 0 31 4 *"} {
		_, err := NextRun(MustParse(expr), mustTime(t, "2024-01-01T00:00:00Z"))
		if err == nil {
			t.Fatalf("NextRun(%s) expected error", expr)
		}
		if !errors.Is(err, errors.ErrInternal) {
			t.Errorf("Expected internal error, got %v", err)
		}
		if !errors.Is(err, ErrNoMatch) {
			t.Errorf("Expected ErrNoMatch, got %v", err)
		}
	}
}

func TestNextRun_InvalidKind(t *testing.T) {
	if _, err := NextRun(Expression{}, time.Now()); err == nil {
		t.Error("Expected error for zero Expression")
	}
	if _, err := NextRun(Expression{Kind: KindInterval}, time.Now()); err == nil {
		t.Error("Expected error for zero interval")
	}
}

// bruteForce is the reference minute-by-minute scan.
func bruteForce(c CronSpec, from time.Time, limit time.Duration) (time.Time, bool) {
	t := from.UTC().Truncate(time.Minute).Add(time.Minute)
	end := t.Add(limit)
	for ; !t.After(end); t = t.Add(time.Minute) {
		if c.Matches(t) {
			return t, true
		}
	}
	return time.Time{}, false
}

func randomField(r *rand.Rand, lo, hi int) int {
	if r.Intn(2) == 0 {
		return Wildcard
	}
	return lo + r.Intn(hi-lo+1)
}

func TestNextRun_CronMatchesMinuteScan(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	base := mustTime(t, "2024-01-01T00:00:00Z")

	for i := 0; i < 200; i++ {
		spec := CronSpec{
			Minute:     randomField(r, 0, 59),
			Hour:       randomField(r, 0, 23),
			DayOfMonth: randomField(r, 1, 28),
			Month:      Wildcard,
			DayOfWeek:  randomField(r, 0, 6),
		}
		// keep the reference scan short: month restrictions make it too slow
		from := base.Add(time.Duration(r.Int63n(int64(90 * 24 * time.Hour))))

		got, err := NextRun(Expression{Kind: KindCron, Cron: spec}, from)
		want, ok := bruteForce(spec, from, 400*24*time.Hour)
		if !ok {
			continue
		}
		if err != nil {
			t.Fatalf("NextRun(%+v, %v) unexpected error: %v", spec, from, err)
		}
		if !got.Equal(want) {
			t.Errorf("NextRun(%+v, %v) mismatch: got %v, want %v", spec, from, got, want)
		}
	}
}

func TestNextRun_CronMonotonic(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	exprs := []string{"cron:* * * * *", "cron:0 * * * *", "cron:15 3 * * *", "cron:0 0 1 * *", "cron:45 23 * * 6"}

	for _, raw := range exprs {
		expr := MustParse(raw)
		for i := 0; i < 50; i++ {
			from := time.Unix(1700000000+r.Int63n(100000000), r.Int63n(int64(time.Second))).UTC()
			next, err := NextRun(expr, from)
			if err != nil {
				t.Fatalf("NextRun(%s) unexpected error: %v", raw, err)
			}
			if !next.After(from) {
				t.Errorf("NextRun(%s, %v) = %v is not after from", raw, from, next)
			}
			if !expr.Cron.Matches(next) {
				t.Errorf("NextRun(%s, %v) = %v does not match the pattern", raw, from, next)
			}
			if next.Second() != 0 || next.Nanosecond() != 0 {
				t.Errorf("NextRun(%s) = %v is not minute aligned", raw, next)
			}
		}
	}
}
