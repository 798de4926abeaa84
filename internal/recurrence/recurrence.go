// internal/recurrence/recurrence.go
package recurrence

import (
	"fmt"
	"strings"
	"time"

	xerrors "subwatch-service/internal/pkg/errors"
)

type Unit string

const (
	UnitDaily   Unit = "daily"
	UnitWeekly  Unit = "weekly"
	UnitMonthly Unit = "monthly"
	UnitYearly  Unit = "yearly"
)

// ParseUnit normalizes a textual billing period into a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "days":
		return UnitDaily, nil
	case "weekly", "week", "weeks":
		return UnitWeekly, nil
	case "monthly", "month", "months":
		return UnitMonthly, nil
	case "yearly", "year", "years", "annual", "annually":
		return UnitYearly, nil
	}
	return "", fmt.Errorf("%w: %q", xerrors.ErrUnknownPeriod, s)
}

// Schedule is an immutable recurrence rule anchored at a civil date. All
// arithmetic happens in wall-clock space in the schedule's location, so a
// monthly subscription keeps firing at the same local date and time across
// DST transitions.
type Schedule struct {
	anchor time.Time
	unit   Unit
	count  int
	loc    *time.Location
}

// New validates the rule and returns a Schedule. The multiplier must be
// at least 1; the unit must be one of the known units.
func New(anchor time.Time, unit Unit, count int, loc *time.Location) (Schedule, error) {
	if count < 1 {
		return Schedule{}, fmt.Errorf("%w: period multiplier must be >= 1, got %d", xerrors.ErrValidation, count)
	}
	switch unit {
	case UnitDaily, UnitWeekly, UnitMonthly, UnitYearly:
	default:
		return Schedule{}, fmt.Errorf("%w: %q", xerrors.ErrUnknownPeriod, string(unit))
	}
	if loc == nil {
		loc = time.UTC
	}
	return Schedule{anchor: anchor.In(loc), unit: unit, count: count, loc: loc}, nil
}

// Occurrence returns the n-th due date after the anchor (n=0 is the anchor
// itself). Every occurrence is computed from the original anchor rather
// than from the previous occurrence, so a Jan 31 anchor clamps to Feb 28
// and then returns to Mar 31 instead of drifting to Mar 28.
func (s Schedule) Occurrence(n int) time.Time {
	y, m, d := s.anchor.Date()
	hh, mm, ss := s.anchor.Clock()
	ns := s.anchor.Nanosecond()

	switch s.unit {
	case UnitDaily:
		return time.Date(y, m, d+n*s.count, hh, mm, ss, ns, s.loc)
	case UnitWeekly:
		return time.Date(y, m, d+7*n*s.count, hh, mm, ss, ns, s.loc)
	case UnitMonthly:
		return addMonthsClamped(y, m, d, n*s.count, hh, mm, ss, ns, s.loc)
	case UnitYearly:
		return addMonthsClamped(y, m, d, 12*n*s.count, hh, mm, ss, ns, s.loc)
	}
	return s.anchor
}

// NextAfter returns the first occurrence strictly after the given instant.
// It is deterministic and restartable: replaying it against the same anchor
// always yields the same date, no matter how many periods have elapsed.
func (s Schedule) NextAfter(after time.Time) time.Time {
	for n := 1; ; n++ {
		if occ := s.Occurrence(n); occ.After(after) {
			return occ
		}
	}
}

// Upcoming returns the next limit occurrences strictly after the given
// instant, in ascending order. Used for previews and listings.
func (s Schedule) Upcoming(after time.Time, limit int) []time.Time {
	if limit <= 0 {
		return nil
	}
	n := 1
	for ; !s.Occurrence(n).After(after); n++ {
	}
	out := make([]time.Time, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, s.Occurrence(n+i))
	}
	return out
}

// addMonthsClamped adds months in civil space, clamping the day of month to
// the target month's length (Jan 31 + 1 month = Feb 28/29, never Mar 3).
func addMonthsClamped(y int, m time.Month, d, months, hh, mm, ss, ns int, loc *time.Location) time.Time {
	total := int(m) - 1 + months
	year := y + total/12
	month := time.Month(total%12 + 1)
	if max := daysIn(year, month); d > max {
		d = max
	}
	return time.Date(year, month, d, hh, mm, ss, ns, loc)
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
