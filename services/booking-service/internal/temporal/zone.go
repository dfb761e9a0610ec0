package temporal

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const DefaultZone = "Europe/Paris"

var zoneCache sync.Map // map[string]*time.Location

// LoadZone resolves an IANA zone name, defaulting to Europe/Paris when empty.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	if loc, ok := zoneCache.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	zoneCache.Store(name, loc)
	return loc, nil
}

// LocalDayOfWeek projects instant into loc and returns the civil weekday there.
func LocalDayOfWeek(instant time.Time, loc *time.Location) time.Weekday {
	return instant.In(loc).Weekday()
}

// ToLocal returns the wall clock reading of instant in loc, truncated to the minute.
func ToLocal(instant time.Time, loc *time.Location) DateTime {
	t := instant.In(loc)
	return DateTime{
		Date: DateOf(t),
		Time: WallTime{Hour: t.Hour(), Minute: t.Minute()},
	}
}

// ToInstant maps a civil date-time in loc to an absolute instant.
//
// When the wall clock occurs twice (fall back) the first occurrence is returned.
// When it does not occur at all (spring forward gap) the first instant after the
// gap is returned, which is the transition itself.
func ToInstant(dt DateTime, loc *time.Location) time.Time {
	naive := time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day, dt.Time.Hour, dt.Time.Minute, 0, 0, time.UTC)

	var candidates []time.Time
	seen := map[int]bool{}
	for _, probe := range []time.Duration{-26 * time.Hour, 0, 26 * time.Hour} {
		_, offset := naive.Add(probe).In(loc).Zone()
		if seen[offset] {
			continue
		}
		seen[offset] = true
		candidates = append(candidates, naive.Add(-time.Duration(offset)*time.Second))
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Before(candidates[j]) })

	for _, c := range candidates {
		if ToLocal(c, loc) == dt {
			return c
		}
	}

	// Gap: the latest candidate was computed with the pre-transition offset and
	// lands just past the gap; its zone period starts at the transition.
	last := candidates[len(candidates)-1]
	if start, _ := last.In(loc).ZoneBounds(); !start.IsZero() && !start.After(last) {
		return start
	}
	return last
}

// DayBounds returns [local midnight of d, local midnight of the next day) in loc.
func DayBounds(d Date, loc *time.Location) (time.Time, time.Time) {
	start := ToInstant(DateTime{Date: d}, loc)
	end := ToInstant(DateTime{Date: d.AddDays(1)}, loc)
	return start, end
}

// FormatTime renders instant as "HH:MM" in loc.
func FormatTime(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format("15:04")
}

// FormatDate renders instant as "YYYY-MM-DD" in loc.
func FormatDate(instant time.Time, loc *time.Location) string {
	return instant.In(loc).Format(time.DateOnly)
}

// Today is the civil date of now in loc.
func Today(now time.Time, loc *time.Location) Date {
	return DateOf(now.In(loc))
}
