// Package model defines the domain types shared by the channel adapters,
// the channel manager, and the inventory and rate sync services.
package model

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used for keys and wire payloads.
const DateLayout = "2006-01-02"

// ErrInvalidDateRange is returned when a range is empty, reversed, or has
// a zero bound.
var ErrInvalidDateRange = errors.New("invalid date range")

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a UTC day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns the number of whole days from a to b (negative when
// b is before a).
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DateRange is an inclusive span of calendar days.
type DateRange struct {
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

// NewDateRange builds a range covering start through start+days-1.
func NewDateRange(start time.Time, days int) DateRange {
	start = Day(start)
	if days < 1 {
		days = 1
	}
	return DateRange{Start: start, End: start.AddDate(0, 0, days-1)}
}

// Validate rejects zero bounds and ranges whose end precedes the start.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidDateRange)
	}
	if Day(r.End).Before(Day(r.Start)) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidDateRange, DateKey(r.End), DateKey(r.Start))
	}
	return nil
}

// Contains reports whether t falls on a day within the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.Start)) && !d.After(Day(r.End))
}

// Days expands the range into individual days in ascending order.
func (r DateRange) Days() []time.Time {
	start, end := Day(r.Start), Day(r.End)
	if end.Before(start) {
		return nil
	}
	days := make([]time.Time, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// String renders the range as "start..end".
func (r DateRange) String() string {
	return DateKey(r.Start) + ".." + DateKey(r.End)
}
