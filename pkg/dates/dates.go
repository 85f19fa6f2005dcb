// Package dates provides a timezone-free calendar day value used as the unit
// key across metrics history, rollout state, and backfill checkpoints.
package dates

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the wire form of a Date.
const Layout = "2006-01-02"

// MonthLayout is the wire form of a calendar month (budget periods).
const MonthLayout = "2006-01"

// ErrRangeInverted indicates a range whose end precedes its start.
var ErrRangeInverted = errors.New("date range end precedes start")

// Date is a calendar day in ISO-8601 (YYYY-MM-DD) form. The string form
// orders lexicographically, so Date values compare directly.
type Date string

// Parse validates and normalizes an ISO-8601 calendar day.
func Parse(raw string) (Date, error) {
	t, err := time.Parse(Layout, raw)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", raw, err)
	}

	return Date(t.Format(Layout)), nil
}

// FromTime truncates a timestamp to its calendar day in the timestamp's own
// location.
func FromTime(t time.Time) Date {
	return Date(t.Format(Layout))
}

// String returns the ISO-8601 form.
func (d Date) String() string {
	return string(d)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == ""
}

// Time returns midnight UTC of the calendar day. Unset or malformed dates
// yield the zero time.
func (d Date) Time() time.Time {
	t, err := time.Parse(Layout, string(d))
	if err != nil {
		return time.Time{}
	}

	return t
}

// Next returns the following calendar day.
func (d Date) Next() Date {
	return FromTime(d.Time().AddDate(0, 0, 1))
}

// Before reports whether d precedes other.
func (d Date) Before(other Date) bool {
	return d < other
}

// After reports whether d follows other.
func (d Date) After(other Date) bool {
	return d > other
}

// Month returns the calendar month (YYYY-MM) containing the date.
func (d Date) Month() string {
	return d.Time().Format(MonthLayout)
}

// MonthStart returns the first day of the date's calendar month.
func (d Date) MonthStart() Date {
	return Date(d.Month() + "-01")
}

// Range returns every day from from through to, inclusive.
func Range(from, to Date) ([]Date, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s..%s", ErrRangeInverted, from, to)
	}

	var out []Date

	for day := from; !day.After(to); day = day.Next() {
		out = append(out, day)
	}

	return out, nil
}
