/*
Package calendar provides day-granularity dates and working-day arithmetic.

PURPOSE:
  Everything in the leave system is day-granular: leave ranges are inclusive
  [start, end] spans of calendar days, and annual leave only consumes
  working days. This package owns the Date type, the pluggable holiday
  policy, and the day/week/month windows used by leave queries.

KEY CONCEPTS:
  - Date: a calendar day, normalized to UTC midnight
  - HolidayCalendar: pluggable company-holiday lookup
  - WorkingDaysBetween: inclusive business-day span (weekends + holidays out)
  - WeekOf / MonthOf: the query windows for anchored leave searches

WEEK CONVENTION:
  Weeks start on Sunday. WeekOf(anchor) returns the Sunday-to-Saturday week
  containing the anchor date.

SEE ALSO:
  - leave/query.go: uses the windows for date-anchored filtering
  - leave/engine.go: uses WorkingDaysBetween to price annual leave
*/
package calendar

import (
	"fmt"
	"time"
)

// DateLayout is the wire/storage format for dates.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE - A calendar day (UTC midnight)
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary instant to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(o Date) bool        { return d.t.Before(o.t) }
func (d Date) After(o Date) bool         { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool         { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.After(o) }
func (d Date) AfterOrEqual(o Date) bool  { return !d.Before(o) }

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.t.AddDate(0, 0, n)) }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format(DateLayout) }

// MarshalJSON emits the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date literal %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// RANGE - Inclusive [start, end] span of days
// =============================================================================

type Range struct {
	Start Date
	End   Date
}

// Contains reports whether day falls inside the inclusive range.
func (r Range) Contains(day Date) bool {
	return r.Start.BeforeOrEqual(day) && day.BeforeOrEqual(r.End)
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (r Range) Overlaps(o Range) bool {
	return r.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(r.End)
}

// Days returns the inclusive calendar-day count of the range.
func (r Range) Days() int {
	return int(r.End.t.Sub(r.Start.t).Hours()/24) + 1
}

// WeekOf returns the Sunday-through-Saturday week containing anchor.
func WeekOf(anchor Date) Range {
	start := anchor.AddDays(-int(anchor.Weekday()))
	return Range{Start: start, End: start.AddDays(6)}
}

// MonthOf returns the calendar month containing anchor.
func MonthOf(anchor Date) Range {
	start := NewDate(anchor.Year(), anchor.Month(), 1)
	end := DateOf(start.t.AddDate(0, 1, -1))
	return Range{Start: start, End: end}
}

// =============================================================================
// HOLIDAY CALENDAR - Pluggable non-working-day policy
// =============================================================================

// HolidayCalendar answers whether a date is a company holiday.
// Weekends are handled separately; a calendar only knows about holidays.
type HolidayCalendar interface {
	IsHoliday(date Date) bool
}

// NoHolidays is the zero policy: weekends only.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(Date) bool { return false }

// FixedHolidays is a static list-backed calendar.
type FixedHolidays map[Date]bool

func (f FixedHolidays) IsHoliday(date Date) bool { return f[date] }

// IsWorkingDay reports whether date is neither a weekend nor a holiday.
func IsWorkingDay(date Date, cal HolidayCalendar) bool {
	if date.IsWeekend() {
		return false
	}
	if cal != nil && cal.IsHoliday(date) {
		return false
	}
	return true
}

// WorkingDaysBetween counts working days in the inclusive range [from, to].
// Returns 0 when to < from; validation of the range belongs to the caller.
func WorkingDaysBetween(from, to Date, cal HolidayCalendar) int {
	count := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if IsWorkingDay(d, cal) {
			count++
		}
	}
	return count
}
