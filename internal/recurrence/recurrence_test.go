package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "subwatch-service/internal/pkg/errors"
)

func date(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, loc)
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in   string
		want Unit
		ok   bool
	}{
		{"monthly", UnitMonthly, true},
		{"Month", UnitMonthly, true},
		{"months", UnitMonthly, true},
		{"weekly", UnitWeekly, true},
		{"week", UnitWeekly, true},
		{"daily", UnitDaily, true},
		{"annual", UnitYearly, true},
		{"yearly", UnitYearly, true},
		{"fortnightly", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := ParseUnit(tt.in)
		if tt.ok {
			require.NoError(t, err, tt.in)
			assert.Equal(t, tt.want, got)
		} else {
			assert.ErrorIs(t, err, xerrors.ErrUnknownPeriod, tt.in)
		}
	}
}

func TestNewRejectsBadMultiplier(t *testing.T) {
	_, err := New(time.Now(), UnitMonthly, 0, time.UTC)
	assert.ErrorIs(t, err, xerrors.ErrValidation)

	_, err = New(time.Now(), UnitMonthly, -2, time.UTC)
	assert.ErrorIs(t, err, xerrors.ErrValidation)
}

func TestMonthEndClamping(t *testing.T) {
	s, err := New(date(2025, time.January, 31, time.UTC), UnitMonthly, 1, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, date(2025, time.February, 28, time.UTC), s.Occurrence(1))
	// Clamping does not drift: March returns to the 31st.
	assert.Equal(t, date(2025, time.March, 31, time.UTC), s.Occurrence(2))
	assert.Equal(t, date(2025, time.April, 30, time.UTC), s.Occurrence(3))
}

func TestMonthEndClampingLeapYear(t *testing.T) {
	s, err := New(date(2024, time.January, 31, time.UTC), UnitMonthly, 1, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.February, 29, time.UTC), s.Occurrence(1))
}

func TestYearlyLeapDayAnchor(t *testing.T) {
	s, err := New(date(2024, time.February, 29, time.UTC), UnitYearly, 1, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.February, 28, time.UTC), s.Occurrence(1))
	assert.Equal(t, date(2028, time.February, 29, time.UTC), s.Occurrence(4))
}

func TestMultiplier(t *testing.T) {
	s, err := New(date(2025, time.March, 15, time.UTC), UnitMonthly, 2, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.May, 15, time.UTC), s.Occurrence(1))
	assert.Equal(t, date(2025, time.July, 15, time.UTC), s.Occurrence(2))

	w, err := New(date(2025, time.March, 15, time.UTC), UnitWeekly, 3, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.April, 5, time.UTC), w.Occurrence(1))
}

func TestStrictMonotonicAdvancement(t *testing.T) {
	anchors := []time.Time{
		date(2025, time.January, 31, time.UTC),
		date(2024, time.February, 29, time.UTC),
		date(2025, time.December, 1, time.UTC),
	}
	units := []Unit{UnitDaily, UnitWeekly, UnitMonthly, UnitYearly}
	for _, anchor := range anchors {
		for _, unit := range units {
			for _, count := range []int{1, 2, 5} {
				s, err := New(anchor, unit, count, time.UTC)
				require.NoError(t, err)
				prev := s.Occurrence(0)
				for n := 1; n <= 24; n++ {
					cur := s.Occurrence(n)
					assert.True(t, cur.After(prev),
						"unit=%s count=%d n=%d: %v not after %v", unit, count, n, cur, prev)
					prev = cur
				}
			}
		}
	}
}

func TestNextAfterSkipsElapsedPeriods(t *testing.T) {
	// Anchor far in the past; NextAfter lands on the first future occurrence
	// without mutating the anchor.
	s, err := New(date(2020, time.June, 10, time.UTC), UnitMonthly, 1, time.UTC)
	require.NoError(t, err)

	now := date(2025, time.August, 20, time.UTC)
	got := s.NextAfter(now)
	assert.Equal(t, date(2025, time.September, 10, time.UTC), got)

	// Restartable: replaying gives the same answer.
	assert.Equal(t, got, s.NextAfter(now))
}

func TestNextAfterOnBoundaryIsStrict(t *testing.T) {
	anchor := date(2025, time.May, 1, time.UTC)
	s, err := New(anchor, UnitDaily, 1, time.UTC)
	require.NoError(t, err)

	due := s.Occurrence(1)
	assert.Equal(t, s.Occurrence(2), s.NextAfter(due))
}

func TestWallClockAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	// Anchor before the spring-forward transition; the due date keeps the
	// 09:00 local wall clock even though the UTC offset changes.
	s, err := New(date(2025, time.March, 15, loc), UnitMonthly, 1, loc)
	require.NoError(t, err)

	next := s.Occurrence(1)
	assert.Equal(t, 15, next.Day())
	assert.Equal(t, time.April, next.Month())
	assert.Equal(t, 9, next.Hour())
}

func TestUpcoming(t *testing.T) {
	s, err := New(date(2025, time.January, 31, time.UTC), UnitMonthly, 1, time.UTC)
	require.NoError(t, err)

	got := s.Upcoming(date(2025, time.January, 31, time.UTC), 3)
	require.Len(t, got, 3)
	assert.Equal(t, date(2025, time.February, 28, time.UTC), got[0])
	assert.Equal(t, date(2025, time.March, 31, time.UTC), got[1])
	assert.Equal(t, date(2025, time.April, 30, time.UTC), got[2])

	assert.Nil(t, s.Upcoming(time.Now(), 0))
}
