package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Day tokens in a weekly pattern are validated here, before any expansion
// happens. A malformed token never reaches the expander.
var ErrInvalidWeeklyDay = fmt.Errorf("invalid day of week for weekly recurrence")

type PatternKind string

const (
	PatternDaily           PatternKind = "daily"
	PatternWeekly          PatternKind = "weekly"
	PatternAbsoluteMonthly PatternKind = "absoluteMonthly"
	PatternRelativeMonthly PatternKind = "relativeMonthly"
	PatternAbsoluteYearly  PatternKind = "absoluteYearly"
	PatternRelativeYearly  PatternKind = "relativeYearly"
)

// WeekIndex values for the relative monthly/yearly variants.
// 1 through 4 count from the start of the month, -1 means the last one.
const WeekIndexLast = -1

// Pattern is a closed union over the recurrence pattern variants. Kind
// decides which of the other fields are meaningful; Validate enforces that
// the chosen variant's fields are present and in range.
type Pattern struct {
	Kind     PatternKind `json:"kind"`
	Interval int         `json:"interval"`

	// weekly
	DaysOfWeek []time.Weekday `json:"daysOfWeek,omitempty"`

	// absolute monthly / absolute yearly
	DayOfMonth int `json:"dayOfMonth,omitempty"`

	// relative monthly / relative yearly
	WeekIndex int          `json:"weekIndex,omitempty"`
	DayOfWeek time.Weekday `json:"dayOfWeek"`

	// yearly variants
	Month time.Month `json:"month,omitempty"`
}

func (p Pattern) Validate() error {
	if p.Interval < 0 {
		return fmt.Errorf("Pattern.Validate: interval must be positive")
	}
	switch p.Kind {
	case PatternDaily:
		return nil
	case PatternWeekly:
		if len(p.DaysOfWeek) == 0 {
			return fmt.Errorf("Pattern.Validate: %w: no days given", ErrInvalidWeeklyDay)
		}
		for _, day := range p.DaysOfWeek {
			if day < time.Sunday || day > time.Saturday {
				return fmt.Errorf("Pattern.Validate: %w: %d", ErrInvalidWeeklyDay, day)
			}
		}
		return nil
	case PatternAbsoluteMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("Pattern.Validate: day of month out of range: %d", p.DayOfMonth)
		}
		return nil
	case PatternRelativeMonthly:
		return p.validateRelative()
	case PatternAbsoluteYearly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("Pattern.Validate: day of month out of range: %d", p.DayOfMonth)
		}
		return p.validateMonth()
	case PatternRelativeYearly:
		if err := p.validateRelative(); err != nil {
			return err
		}
		return p.validateMonth()
	default:
		return fmt.Errorf("Pattern.Validate: unknown pattern kind: %q", p.Kind)
	}
}

func (p Pattern) validateRelative() error {
	switch p.WeekIndex {
	case 1, 2, 3, 4, WeekIndexLast:
	default:
		return fmt.Errorf("Pattern.Validate: week index out of range: %d", p.WeekIndex)
	}
	if p.DayOfWeek < time.Sunday || p.DayOfWeek > time.Saturday {
		return fmt.Errorf("Pattern.Validate: day of week out of range: %d", p.DayOfWeek)
	}
	return nil
}

func (p Pattern) validateMonth() error {
	if p.Month < time.January || p.Month > time.December {
		return fmt.Errorf("Pattern.Validate: month is required for yearly patterns")
	}
	return nil
}

// interval with the implicit default applied
func (p Pattern) interval() int {
	if p.Interval < 1 {
		return 1
	}
	return p.Interval
}

var dayTokens = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseDayOfWeek turns a day token from a client request into a weekday.
// Unknown tokens fail with ErrInvalidWeeklyDay.
func ParseDayOfWeek(token string) (time.Weekday, error) {
	day, ok := dayTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return 0, fmt.Errorf("ParseDayOfWeek: %w: %q", ErrInvalidWeeklyDay, token)
	}
	return day, nil
}

type RangeKind string

const (
	RangeNoEnd    RangeKind = "noEnd"
	RangeEndDate  RangeKind = "endDate"
	RangeNumbered RangeKind = "numbered"
)

// Range is a closed union over the recurrence range variants.
type Range struct {
	Kind  RangeKind `json:"kind"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
	Count int       `json:"count,omitempty"`
}

func (r Range) Validate() error {
	if r.Start.IsZero() {
		return fmt.Errorf("Range.Validate: start date is required")
	}
	switch r.Kind {
	case RangeNoEnd:
		return nil
	case RangeEndDate:
		if r.End.Before(r.Start) {
			return fmt.Errorf("Range.Validate: end date must not be before start date")
		}
		return nil
	case RangeNumbered:
		if r.Count < 1 {
			return fmt.Errorf("Range.Validate: occurrence count must be positive")
		}
		return nil
	default:
		return fmt.Errorf("Range.Validate: unknown range kind: %q", r.Kind)
	}
}

// Recurrence pairs a pattern with its range; this is what a recurring
// master persists.
type Recurrence struct {
	Pattern Pattern `json:"pattern"`
	Range   Range   `json:"range"`
}

func (r Recurrence) Validate() error {
	if err := r.Pattern.Validate(); err != nil {
		return err
	}
	return r.Range.Validate()
}

func (r Recurrence) Marshal() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("Recurrence.Marshal: %w", err)
	}
	return string(raw), nil
}

func Unmarshal(raw string) (Recurrence, error) {
	var rec Recurrence
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Recurrence{}, fmt.Errorf("recurrence.Unmarshal: %w", err)
	}
	return rec, nil
}
