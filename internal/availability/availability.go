// Package availability holds a doctor's declarative schedule and turns it
// into bookable time slots. Everything here is pure: slot generation depends
// only on the schedule, the set of already-booked times and the clock passed
// in by the caller.
package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/careops/hospital-scheduling/internal/timefmt"
)

// Range is a wall-clock interval within a single day, "HH:MM" inclusive start,
// exclusive end.
type Range struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability is a doctor's declared schedule. Weekly is keyed by lowercase
// English weekday name, Overrides and Blocked by day_month_year date keys.
// Overrides take precedence over the weekly schedule for their date; Blocked
// wins over both.
type Availability struct {
	Enabled      bool               `json:"enabled"`
	Timezone     string             `json:"timezone"`
	SlotDuration int                `json:"slot_duration_minutes"`
	Weekly       map[string][]Range `json:"weekly_schedule"`
	Overrides    map[string][]Range `json:"date_overrides"`
	Blocked      []string           `json:"blocked_dates"`
}

var weekdayNames = map[string]struct{}{
	"monday":    {},
	"tuesday":   {},
	"wednesday": {},
	"thursday":  {},
	"friday":    {},
	"saturday":  {},
	"sunday":    {},
}

var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleError describes why an availability definition was rejected.
type ScheduleError struct {
	Field  string
	Reason string
}

func (e *ScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

func (e *ScheduleError) Unwrap() error { return ErrInvalidSchedule }

// Validate checks that the schedule is well-formed: positive slot duration,
// parseable ranges with start before end, known weekday keys and parseable
// date keys. It does not reject overlapping ranges; overlaps produce
// duplicate-free slots at generation time.
func (av Availability) Validate() error {
	if av.SlotDuration <= 0 {
		return &ScheduleError{Field: "slot_duration_minutes", Reason: "must be positive"}
	}
	if av.Timezone != "" {
		if _, err := time.LoadLocation(av.Timezone); err != nil {
			return &ScheduleError{Field: "timezone", Reason: fmt.Sprintf("unknown timezone %q", av.Timezone)}
		}
	}
	for day, ranges := range av.Weekly {
		if _, ok := weekdayNames[day]; !ok {
			return &ScheduleError{Field: "weekly_schedule", Reason: fmt.Sprintf("unknown weekday %q", day)}
		}
		if err := validateRanges(ranges); err != nil {
			return &ScheduleError{Field: "weekly_schedule." + day, Reason: err.Error()}
		}
	}
	for dateKey, ranges := range av.Overrides {
		if _, err := timefmt.ParseDateKey(dateKey, time.UTC); err != nil {
			return &ScheduleError{Field: "date_overrides", Reason: fmt.Sprintf("bad date key %q", dateKey)}
		}
		if err := validateRanges(ranges); err != nil {
			return &ScheduleError{Field: "date_overrides." + dateKey, Reason: err.Error()}
		}
	}
	for _, dateKey := range av.Blocked {
		if _, err := timefmt.ParseDateKey(dateKey, time.UTC); err != nil {
			return &ScheduleError{Field: "blocked_dates", Reason: fmt.Sprintf("bad date key %q", dateKey)}
		}
	}
	return nil
}

func validateRanges(ranges []Range) error {
	for _, r := range ranges {
		start, err := timefmt.ParseClock(r.Start)
		if err != nil {
			return fmt.Errorf("bad start %q", r.Start)
		}
		end, err := timefmt.ParseClock(r.End)
		if err != nil {
			return fmt.Errorf("bad end %q", r.End)
		}
		if start >= end {
			return fmt.Errorf("range %s-%s: start must precede end", r.Start, r.End)
		}
	}
	return nil
}

// Location resolves the schedule's timezone, falling back to UTC when unset
// or unknown.
func (av Availability) Location() *time.Location {
	if av.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(av.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func weekdayKey(d time.Weekday) string {
	switch d {
	case time.Monday:
		return "monday"
	case time.Tuesday:
		return "tuesday"
	case time.Wednesday:
		return "wednesday"
	case time.Thursday:
		return "thursday"
	case time.Friday:
		return "friday"
	case time.Saturday:
		return "saturday"
	default:
		return "sunday"
	}
}
