package availability

import (
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

// Step is the fixed distance between candidate slot starts.
const Step = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// Slot is a bookable [Start, End) with its local "HH:MM" start for display.
type Slot struct {
	Start      time.Time
	End        time.Time
	StartLocal string
}

// AvailableSlots returns slot start times from windowStart, every step, such that
// [start, start+duration) stays within [windowStart, windowEnd], overlaps none of
// busy, and start is not before now. A start equal to now is kept.
func AvailableSlots(windowStart, windowEnd time.Time, duration, step time.Duration, busy []Interval, now time.Time) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}
	if windowStart.Add(duration).After(windowEnd) {
		return nil
	}

	var slots []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(step) {
		if t.Before(now) {
			continue
		}
		if !overlapsAny(t, t.Add(duration), busy) {
			slots = append(slots, t)
		}
	}
	return slots
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// Clip keeps only the intervals overlapping [from, to).
func Clip(busy []Interval, from, to time.Time) []Interval {
	out := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.Overlaps(from, to) {
			out = append(out, b)
		}
	}
	return out
}

// Day describes one local calendar day to scan.
type Day struct {
	Date     temporal.Date
	Hours    schedule.DayHours
	Location *time.Location
	Duration time.Duration
	Busy     []Interval
	Now      time.Time
}

// Window converts the day's local hours to instants.
func (d Day) Window() (Interval, bool) {
	open, close, ok := d.Hours.Window()
	if !ok {
		return Interval{}, false
	}
	start := temporal.ToInstant(temporal.DateTime{Date: d.Date, Time: open}, d.Location)
	end := temporal.ToInstant(temporal.DateTime{Date: d.Date, Time: close}, d.Location)
	if !end.After(start) {
		return Interval{}, false
	}
	return Interval{Start: start, End: end}, true
}

// ForDay produces the ordered bookable slots for one day. It holds no state and
// can be called repeatedly.
func ForDay(d Day) []Slot {
	win, ok := d.Window()
	if !ok {
		return nil
	}
	busy := Clip(d.Busy, win.Start, win.End)
	starts := AvailableSlots(win.Start, win.End, d.Duration, Step, busy, d.Now)
	slots := make([]Slot, 0, len(starts))
	for _, s := range starts {
		slots = append(slots, Slot{
			Start:      s.UTC(),
			End:        s.Add(d.Duration).UTC(),
			StartLocal: temporal.FormatTime(s, d.Location),
		})
	}
	return slots
}

// Fits reports whether [start, end) lies inside the day's open window.
func (d Day) Fits(start, end time.Time) bool {
	win, ok := d.Window()
	if !ok {
		return false
	}
	return !start.Before(win.Start) && !end.After(win.End)
}

// DaySlots is one day of a multi-day query.
type DaySlots struct {
	Date  temporal.Date
	Label string
	Slots []Slot
}
