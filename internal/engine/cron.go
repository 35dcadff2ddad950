package engine

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// fiveFieldParser accepts exactly the standard 5-field syntax
// (minute hour day-of-month month day-of-week). No seconds field, no
// descriptors.
var fiveFieldParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseExpression validates and compiles a 5-field cron expression.
func ParseExpression(expr string) (cron.Schedule, error) {
	sched, err := fiveFieldParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return sched, nil
}

// LoadTimezone resolves a canonical IANA zone name.
func LoadTimezone(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, name)
	}
	return loc, nil
}

// MonthWindow returns the first instant of ref's month and the last included
// instant of that month (23:59:59), both in loc.
func MonthWindow(ref time.Time, loc *time.Location) (start, end time.Time) {
	r := ref.In(loc)
	start = time.Date(r.Year(), r.Month(), 1, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// EvaluateExpression computes every occurrence of expr whose wall-clock
// time, interpreted in tz, falls inside ref's calendar month (inclusive of
// the first and last instants). Occurrences are strictly increasing with no
// duplicates.
//
// DST behavior follows the underlying cron schedule: a wall time inside a
// spring-forward gap never materializes, and a repeated fall-back hour
// resolves to a single instant per wall-clock match.
func EvaluateExpression(expr string, ref time.Time, tz string) ([]time.Time, error) {
	sched, err := ParseExpression(expr)
	if err != nil {
		return nil, err
	}
	loc, err := LoadTimezone(tz)
	if err != nil {
		return nil, err
	}
	start, end := MonthWindow(ref, loc)
	return occurrencesBetween(sched, start, end), nil
}

// occurrencesBetween walks sched over [start, end] inclusive. The search is
// seeded one millisecond before start because Next() is exclusive of its
// argument; without that, an occurrence on the very first instant of the
// window (e.g. "0 0 1 * *") would be skipped.
func occurrencesBetween(sched cron.Schedule, start, end time.Time) []time.Time {
	var out []time.Time
	cur := start.Add(-time.Millisecond)
	for {
		next := sched.Next(cur)
		// Zero time means the schedule has no match within the library's
		// search horizon.
		if next.IsZero() || next.After(end) {
			return out
		}
		out = append(out, next)
		cur = next
	}
}
