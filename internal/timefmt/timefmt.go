// Package timefmt handles the legacy date and time string formats used by the
// booked-slot index and the appointment records. Dates are keyed as
// day_month_year with no zero padding (e.g. "5_3_2026"), times as 24-hour
// "HH:MM". Stored keys must match bit-for-bit, so all formatting goes through
// this package; everything else in the codebase works with time.Time.
package timefmt

import (
	"errors"
	"fmt"
	"time"
)

// ErrFormat wraps every parse failure so callers can map malformed input to a
// client error without inspecting message text.
var ErrFormat = errors.New("malformed date or time value")

const (
	// DateLayout is the reference layout for day_month_year keys.
	DateLayout = "2_1_2006"
	// ClockLayout is the reference layout for slot times.
	ClockLayout = "15:04"
)

// DateKey renders t's calendar date as a day_month_year key.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDateKey parses a day_month_year key into midnight of that date in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, key, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date key %q", ErrFormat, key)
	}
	return t, nil
}

// ParseClock parses an "HH:MM" value and returns it as minutes since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("%w: clock %q", ErrFormat, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Clock renders minutes since midnight as an "HH:MM" value.
func Clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// At combines a date key and a clock value into an instant in loc.
func At(dateKey, clock string, loc *time.Location) (time.Time, error) {
	day, err := ParseDateKey(dateKey, loc)
	if err != nil {
		return time.Time{}, err
	}
	mins, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(mins) * time.Minute), nil
}
