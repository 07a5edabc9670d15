package recurrence_test

import (
	"testing"
	"time"

	"groupcal/src-server/recurrence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC) // a Monday

func TestExpandDailyNumbered(t *testing.T) {
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
		recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 5},
		time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 5)

	for i, occ := range occurrences {
		assert.Equal(t, i+1, occ.Index)
		assert.Equal(t, seriesStart.AddDate(0, 0, i), occ.Start)
		assert.Equal(t, time.Hour, occ.End.Sub(occ.Start))
		if i > 0 {
			assert.True(t, occ.Start.After(occurrences[i-1].Start))
		}
	}
}

func TestExpandWeeklyMultipleDays(t *testing.T) {
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{
			Kind:       recurrence.PatternWeekly,
			Interval:   1,
			DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday},
		},
		recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 4},
		30*time.Minute, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 4)

	assert.Equal(t, time.Monday, occurrences[0].Start.Weekday())
	assert.Equal(t, time.Wednesday, occurrences[1].Start.Weekday())
	assert.Equal(t, time.Monday, occurrences[2].Start.Weekday())
	// second Monday is exactly a week after the first
	assert.Equal(t, occurrences[0].Start.AddDate(0, 0, 7), occurrences[2].Start)
}

func TestExpandEndDateInclusive(t *testing.T) {
	// end date lands exactly on the fourth daily occurrence
	end := seriesStart.AddDate(0, 0, 3)
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
		recurrence.Range{Kind: recurrence.RangeEndDate, Start: seriesStart, End: end},
		time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 4)
	assert.Equal(t, end, occurrences[3].Start)
}

func TestExpandNoEndCutsAtLimit(t *testing.T) {
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1},
		recurrence.Range{Kind: recurrence.RangeNoEnd, Start: seriesStart},
		time.Hour, 10)
	require.NoError(t, err)
	assert.Len(t, occurrences, 10)
}

func TestExpandAbsoluteMonthly(t *testing.T) {
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{Kind: recurrence.PatternAbsoluteMonthly, Interval: 1, DayOfMonth: 15},
		recurrence.Range{
			Kind:  recurrence.RangeNumbered,
			Start: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
			Count: 3,
		},
		time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 3)
	for i, occ := range occurrences {
		assert.Equal(t, 15, occ.Start.Day())
		assert.Equal(t, time.Month(i+1), occ.Start.Month())
	}
}

func TestExpandRelativeMonthlyLast(t *testing.T) {
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{
			Kind:      recurrence.PatternRelativeMonthly,
			Interval:  1,
			WeekIndex: recurrence.WeekIndexLast,
			DayOfWeek: time.Friday,
		},
		recurrence.Range{
			Kind:  recurrence.RangeNumbered,
			Start: time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC),
			Count: 2,
		},
		time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	// last Fridays of January and February 2024
	assert.Equal(t, time.Date(2024, 1, 26, 14, 0, 0, 0, time.UTC), occurrences[0].Start)
	assert.Equal(t, time.Date(2024, 2, 23, 14, 0, 0, 0, time.UTC), occurrences[1].Start)
}

func TestExpandRelativeYearly(t *testing.T) {
	// second Tuesday of November
	occurrences, err := recurrence.Expand(
		recurrence.Pattern{
			Kind:      recurrence.PatternRelativeYearly,
			Interval:  1,
			WeekIndex: 2,
			DayOfWeek: time.Tuesday,
			Month:     time.November,
		},
		recurrence.Range{
			Kind:  recurrence.RangeNumbered,
			Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
			Count: 2,
		},
		time.Hour, 100)
	require.NoError(t, err)
	require.Len(t, occurrences, 2)
	assert.Equal(t, time.Date(2024, 11, 12, 9, 0, 0, 0, time.UTC), occurrences[0].Start)
	assert.Equal(t, time.Date(2025, 11, 11, 9, 0, 0, 0, time.UTC), occurrences[1].Start)
}

func TestAt(t *testing.T) {
	pattern := recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 2}
	rng := recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 10}

	occ, ok, err := recurrence.At(pattern, rng, time.Hour, 3, 1000)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, occ.Index)
	assert.Equal(t, seriesStart.AddDate(0, 0, 4), occ.Start)

	// past the end of a bounded range
	_, ok, err = recurrence.At(pattern, rng, time.Hour, 11, 1000)
	require.NoError(t, err)
	assert.False(t, ok)

	// NoEnd bounded by the cap
	noEnd := recurrence.Range{Kind: recurrence.RangeNoEnd, Start: seriesStart}
	_, ok, err = recurrence.At(pattern, noEnd, time.Hour, 51, 50)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLast(t *testing.T) {
	pattern := recurrence.Pattern{Kind: recurrence.PatternDaily, Interval: 1}

	occ, ok, err := recurrence.Last(pattern,
		recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 7}, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, occ.Index)
	assert.Equal(t, seriesStart.AddDate(0, 0, 6), occ.Start)

	// an unbounded series has no last occurrence
	_, ok, err = recurrence.Last(pattern,
		recurrence.Range{Kind: recurrence.RangeNoEnd, Start: seriesStart}, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateRejectsEmptyWeekly(t *testing.T) {
	err := recurrence.Pattern{Kind: recurrence.PatternWeekly, Interval: 1}.Validate()
	assert.ErrorIs(t, err, recurrence.ErrInvalidWeeklyDay)
}

func TestParseDayOfWeek(t *testing.T) {
	day, err := recurrence.ParseDayOfWeek("  Wednesday ")
	require.NoError(t, err)
	assert.Equal(t, time.Wednesday, day)

	_, err = recurrence.ParseDayOfWeek("wedsday")
	assert.ErrorIs(t, err, recurrence.ErrInvalidWeeklyDay)
}

func TestRecurrenceMarshalRoundTrip(t *testing.T) {
	rec := recurrence.Recurrence{
		Pattern: recurrence.Pattern{
			Kind:       recurrence.PatternWeekly,
			Interval:   2,
			DaysOfWeek: []time.Weekday{time.Tuesday, time.Thursday},
		},
		Range: recurrence.Range{Kind: recurrence.RangeNumbered, Start: seriesStart, Count: 12},
	}
	raw, err := rec.Marshal()
	require.NoError(t, err)

	parsed, err := recurrence.Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, rec.Pattern.DaysOfWeek, parsed.Pattern.DaysOfWeek)
	assert.Equal(t, rec.Range.Count, parsed.Range.Count)
	assert.True(t, rec.Range.Start.Equal(parsed.Range.Start))
}
