// Package clock converts timestamps into canonical local calendar dates.
// A user's "day" boundary is defined by their own timezone, never UTC.
package clock

import (
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

// DateLayout is the canonical local-date format used as an idempotency key.
const DateLayout = "2006-01-02"

// LocalDate renders ts as a calendar date in the given IANA timezone. An
// unknown or empty timezone falls back to UTC; a zero timestamp is rejected
// before any storage access.
func LocalDate(ts time.Time, timezone string) (string, error) {
	if ts.IsZero() {
		return "", reward.ValidationError{Field: "timestamp", Reason: "must not be zero"}
	}
	return ts.In(Location(timezone)).Format(DateLayout), nil
}

// Location resolves an IANA timezone name, falling back to UTC when the name
// is unknown or empty.
func Location(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PrevDate returns the calendar date one day before a DateLayout string.
func PrevDate(date string) (string, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", reward.ValidationError{Field: "date", Reason: "not a calendar date"}
	}
	return t.AddDate(0, 0, -1).Format(DateLayout), nil
}

// DaysBetween returns b - a in whole days. Errors on malformed input.
func DaysBetween(a, b string) (int, error) {
	ta, err := time.Parse(DateLayout, a)
	if err != nil {
		return 0, reward.ValidationError{Field: "date", Reason: "not a calendar date"}
	}
	tb, err := time.Parse(DateLayout, b)
	if err != nil {
		return 0, reward.ValidationError{Field: "date", Reason: "not a calendar date"}
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}

// NextUTCMidnight returns the first UTC midnight strictly after ts. Premium
// quota windows reset on this boundary.
func NextUTCMidnight(ts time.Time) time.Time {
	utc := ts.UTC()
	next := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return next
}
