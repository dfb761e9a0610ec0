package availability

import (
	"testing"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/schedule"
	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

func TestAvailableSlots_Basic(t *testing.T) {
	loc := time.UTC
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, loc)
	windowStart := time.Date(2026, 1, 28, 9, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 1, 28, 10, 0, 0, 0, loc)

	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}

	slots := AvailableSlots(windowStart, windowEnd, 15*time.Minute, 15*time.Minute, busy, day)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(day.Add(9*time.Hour + 45*time.Minute)) {
		t.Fatalf("expected second slot 09:45, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestAvailableSlots_SkipsPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(11 * time.Hour)

	now := day.Add(9*time.Hour + 31*time.Minute)
	slots := AvailableSlots(windowStart, windowEnd, Step, Step, nil, now)
	// 09:00 and 09:30 start before now; 10:00 and 10:30 remain.
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].Equal(day.Add(10 * time.Hour)) {
		t.Fatalf("expected slot 10:00, got %s", slots[0].Format(time.RFC3339))
	}

	// A slot starting exactly now is still offered.
	slots = AvailableSlots(windowStart, windowEnd, Step, Step, nil, day.Add(10*time.Hour))
	if len(slots) != 2 || !slots[0].Equal(day.Add(10*time.Hour)) {
		t.Fatalf("expected 10:00 to be offered at now=10:00, got %v", slots)
	}
}

func TestAvailableSlots_TouchingBookingsDoNotBlock(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	busy := []Interval{{Start: day.Add(10 * time.Hour), End: day.Add(11 * time.Hour)}}
	slots := AvailableSlots(day.Add(9*time.Hour), day.Add(12*time.Hour), time.Hour, Step, busy, day)

	var got []string
	for _, s := range slots {
		got = append(got, s.Format("15:04"))
	}
	want := []string{"09:00", "11:00"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func parisMonday(t *testing.T) (temporal.Date, *time.Location) {
	t.Helper()
	loc, err := temporal.LoadZone("Europe/Paris")
	if err != nil {
		t.Fatalf("LoadZone: %v", err)
	}
	return temporal.NewDate(2026, time.March, 2), loc
}

func TestForDay_ParisMondayHourService(t *testing.T) {
	date, loc := parisMonday(t)
	slots := ForDay(Day{
		Date:     date,
		Hours:    schedule.OpenBetween(temporal.MustWallTime("08:00"), temporal.MustWallTime("18:00")),
		Location: loc,
		Duration: time.Hour,
		Now:      time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC),
	})

	if len(slots) != 19 {
		t.Fatalf("expected 19 slots (08:00..17:00), got %d", len(slots))
	}
	if slots[0].StartLocal != "08:00" || slots[len(slots)-1].StartLocal != "17:00" {
		t.Fatalf("unexpected bounds %s..%s", slots[0].StartLocal, slots[len(slots)-1].StartLocal)
	}
	if got := slots[0].Start.Format(time.RFC3339); got != "2026-03-02T07:00:00Z" {
		t.Fatalf("expected 07:00Z start, got %s", got)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Sub(slots[i-1].Start) != Step {
			t.Fatalf("slots %d and %d are not one step apart", i-1, i)
		}
		if slots[i].End.Sub(slots[i].Start) != time.Hour {
			t.Fatalf("slot %d has wrong length", i)
		}
	}
}

func TestForDay_ClosedAndBusy(t *testing.T) {
	date, loc := parisMonday(t)
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	if got := ForDay(Day{Date: date, Hours: schedule.Closed(), Location: loc, Duration: time.Hour, Now: now}); len(got) != 0 {
		t.Fatalf("expected no slots on a closed day, got %d", len(got))
	}

	// 10:00-12:00 window with a 10:30-11:00 booking leaves only 11:00 for 60 minutes.
	busy := []Interval{
		{Start: time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC), End: time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)},
		// Other day; clipped away.
		{Start: time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC), End: time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC)},
	}
	got := ForDay(Day{
		Date:     date,
		Hours:    schedule.OpenBetween(temporal.MustWallTime("10:00"), temporal.MustWallTime("12:00")),
		Location: loc,
		Duration: time.Hour,
		Busy:     busy,
		Now:      now,
	})
	if len(got) != 1 || got[0].StartLocal != "11:00" {
		t.Fatalf("expected only 11:00, got %+v", got)
	}
}

func TestDayFits(t *testing.T) {
	date, loc := parisMonday(t)
	d := Day{
		Date:     date,
		Hours:    schedule.OpenBetween(temporal.MustWallTime("08:00"), temporal.MustWallTime("18:00")),
		Location: loc,
	}
	start := time.Date(2026, time.March, 2, 16, 0, 0, 0, time.UTC) // 17:00 Paris
	if !d.Fits(start, start.Add(time.Hour)) {
		t.Fatal("expected 17:00-18:00 to fit")
	}
	if d.Fits(start, start.Add(90*time.Minute)) {
		t.Fatal("expected 17:00-18:30 to overflow closing time")
	}
	if d.Fits(start.Add(-10*time.Hour), start.Add(-9*time.Hour)) {
		t.Fatal("expected 07:00-08:00 to start before opening")
	}
}
