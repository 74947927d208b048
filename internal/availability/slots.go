package availability

import (
	"sort"
	"time"

	"github.com/careops/hospital-scheduling/internal/timefmt"
)

// BookedSet is the set of already-taken "HH:MM" values for one doctor-date.
type BookedSet map[string]struct{}

// Has reports whether clock is taken. A nil set has nothing booked.
func (b BookedSet) Has(clock string) bool {
	_, taken := b[clock]
	return taken
}

// Slots generates the bookable times for date, in chronological order.
//
// A candidate slot is emitted only when it fits entirely inside a declared
// range, starts strictly after now, and is not already booked. A disabled
// schedule or a blocked date yields nothing; a range shorter than one slot
// duration yields nothing for that range. Ranges come from the date override
// when one exists, otherwise from the weekly schedule.
func Slots(av Availability, booked BookedSet, date time.Time, now time.Time) []string {
	if !av.Enabled || av.SlotDuration <= 0 {
		return nil
	}

	loc := av.Location()
	dateKey := timefmt.DateKey(date)

	for _, blocked := range av.Blocked {
		if blocked == dateKey {
			return nil
		}
	}

	ranges, ok := av.Overrides[dateKey]
	if !ok {
		ranges = av.Weekly[weekdayKey(date.In(loc).Weekday())]
	}
	if len(ranges) == 0 {
		return nil
	}

	midnight, err := timefmt.ParseDateKey(dateKey, loc)
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string

	for _, r := range ranges {
		start, err := timefmt.ParseClock(r.Start)
		if err != nil {
			continue
		}
		end, err := timefmt.ParseClock(r.End)
		if err != nil {
			continue
		}

		for m := start; m+av.SlotDuration <= end; m += av.SlotDuration {
			clock := timefmt.Clock(m)
			if _, dup := seen[clock]; dup {
				continue
			}
			startsAt := midnight.Add(time.Duration(m) * time.Minute)
			if !startsAt.After(now) {
				continue
			}
			if booked.Has(clock) {
				continue
			}
			seen[clock] = struct{}{}
			out = append(out, clock)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		a, _ := timefmt.ParseClock(out[i])
		b, _ := timefmt.ParseClock(out[j])
		return a < b
	})

	return out
}
