package recurrence

import (
	"fmt"
	"time"

	"github.com/xyedo/rrule"
)

// Occurrence is one concrete window of a recurring series. Index is
// 1-based and defined purely by pattern application; exceptions never
// shift it.
type Occurrence struct {
	Index int
	Start time.Time
	End   time.Time
}

// Next yields occurrences in strictly increasing order. The second return
// is false once the range is exhausted; a NoEnd range never exhausts, so
// callers must bound their own consumption.
type Next func() (Occurrence, bool)

var weekdayToRRule = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Iter compiles the pattern/range pair into a lazy occurrence iterator.
// Every occurrence keeps the master's duration. Calling Iter again
// restarts the sequence from index 1.
func Iter(p Pattern, rng Range, duration time.Duration) (Next, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("recurrence.Iter: duration must be positive")
	}

	opt := rrule.ROption{
		Dtstart:  rng.Start.UTC(),
		Interval: p.interval(),
	}
	switch p.Kind {
	case PatternDaily:
		opt.Freq = rrule.DAILY
	case PatternWeekly:
		opt.Freq = rrule.WEEKLY
		for _, day := range p.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, weekdayToRRule[day])
		}
	case PatternAbsoluteMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{p.DayOfMonth}
	case PatternRelativeMonthly:
		opt.Freq = rrule.MONTHLY
		day := weekdayToRRule[p.DayOfWeek]
		opt.Byweekday = []rrule.Weekday{day.Nth(p.WeekIndex)}
	case PatternAbsoluteYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(p.Month)}
		opt.Bymonthday = []int{p.DayOfMonth}
	case PatternRelativeYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(p.Month)}
		day := weekdayToRRule[p.DayOfWeek]
		opt.Byweekday = []rrule.Weekday{day.Nth(p.WeekIndex)}
	}
	switch rng.Kind {
	case RangeEndDate:
		// generation stops at the first occurrence past the end date,
		// so occurrences starting exactly on it are still included
		opt.Until = rng.End.UTC()
	case RangeNumbered:
		opt.Count = rng.Count
	}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("recurrence.Iter: can't build rrule: %w", err)
	}

	iter := rule.Iterator()
	index := 0
	return func() (Occurrence, bool) {
		start, ok := iter()
		if !ok {
			return Occurrence{}, false
		}
		index++
		return Occurrence{
			Index: index,
			Start: start,
			End:   start.Add(duration),
		}, true
	}, nil
}

// Expand materializes at most limit occurrences. A NoEnd range is always
// cut off at limit; bounded ranges may produce fewer.
func Expand(p Pattern, rng Range, duration time.Duration, limit int) ([]Occurrence, error) {
	if limit < 1 {
		return nil, fmt.Errorf("recurrence.Expand: limit must be positive")
	}
	next, err := Iter(p, rng, duration)
	if err != nil {
		return nil, err
	}
	occurrences := make([]Occurrence, 0, min(limit, 64))
	for len(occurrences) < limit {
		occ, ok := next()
		if !ok {
			break
		}
		occurrences = append(occurrences, occ)
	}
	return occurrences, nil
}

// At resolves the single occurrence with the given 1-based index, walking
// the sequence lazily. ok is false when the index is past the end of a
// bounded range or beyond cap for an unbounded one.
func At(p Pattern, rng Range, duration time.Duration, index int, cap int) (Occurrence, bool, error) {
	if index < 1 {
		return Occurrence{}, false, fmt.Errorf("recurrence.At: index must be positive")
	}
	if rng.Kind == RangeNoEnd && index > cap {
		return Occurrence{}, false, nil
	}
	next, err := Iter(p, rng, duration)
	if err != nil {
		return Occurrence{}, false, err
	}
	for {
		occ, ok := next()
		if !ok {
			return Occurrence{}, false, nil
		}
		if occ.Index == index {
			return occ, true, nil
		}
	}
}

// Last returns the final occurrence of a bounded range. For NoEnd the
// second return is false; an unbounded series has no last occurrence and
// must never be expanded to find one.
func Last(p Pattern, rng Range, duration time.Duration) (Occurrence, bool, error) {
	if rng.Kind == RangeNoEnd {
		return Occurrence{}, false, nil
	}
	next, err := Iter(p, rng, duration)
	if err != nil {
		return Occurrence{}, false, err
	}
	var last Occurrence
	found := false
	for {
		occ, ok := next()
		if !ok {
			break
		}
		last = occ
		found = true
	}
	return last, found, nil
}
