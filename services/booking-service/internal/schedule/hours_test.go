package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

func wt(s string) temporal.WallTime { return temporal.MustWallTime(s) }

func ptr(w temporal.WallTime) *temporal.WallTime { return &w }

func garageWeek() []WeeklyHours {
	var week []WeeklyHours
	for d := time.Monday; d <= time.Friday; d++ {
		week = append(week, WeeklyHours{Weekday: d, Open: wt("08:00"), Close: wt("18:00")})
	}
	week = append(week,
		WeeklyHours{Weekday: time.Saturday, Open: wt("09:00"), Close: wt("12:00")},
		WeeklyHours{Weekday: time.Sunday, Closed: true},
	)
	return week
}

func TestResolve_WeeklyEntry(t *testing.T) {
	cfg := Config{Weekly: garageWeek()}
	monday := temporal.NewDate(2026, time.March, 2)

	open, close, ok := Resolve(cfg, monday).Window()
	if !ok || open != wt("08:00") || close != wt("18:00") {
		t.Fatalf("unexpected monday hours: %v %v %v", open, close, ok)
	}
	if got := Resolve(cfg, monday.AddDays(5)).String(); got != "09:00-12:00" {
		t.Fatalf("unexpected saturday hours %s", got)
	}
}

func TestResolve_ClosedDay(t *testing.T) {
	cfg := Config{Weekly: garageWeek()}
	sunday := temporal.NewDate(2026, time.March, 8)
	if !Resolve(cfg, sunday).IsClosed() {
		t.Fatal("expected sunday closed")
	}

	// No entry at all for a weekday is closed too.
	if !Resolve(Config{Weekly: garageWeek()[:1]}, sunday.AddDays(2)).IsClosed() {
		t.Fatal("expected missing weekday entry to be closed")
	}
}

func TestResolve_ExceptionWins(t *testing.T) {
	monday := temporal.NewDate(2026, time.March, 2)
	cfg := Config{
		Weekly: garageWeek(),
		Exceptions: []Exception{
			{Date: monday, Hours: OpenBetween(wt("10:00"), wt("12:00"))},
			{Date: monday.AddDays(1), Hours: Closed(), Reason: "inventaire"},
			// An exception on a normally closed Sunday opens it.
			{Date: monday.AddDays(6), Hours: OpenBetween(wt("09:00"), wt("11:00"))},
		},
	}
	if got := Resolve(cfg, monday).String(); got != "10:00-12:00" {
		t.Fatalf("expected exception window, got %s", got)
	}
	if !Resolve(cfg, monday.AddDays(1)).IsClosed() {
		t.Fatal("expected closed exception to close tuesday")
	}
	if got := Resolve(cfg, monday.AddDays(6)).String(); got != "09:00-11:00" {
		t.Fatalf("expected sunday opened by exception, got %s", got)
	}
	if got := Resolve(cfg, monday.AddDays(2)).String(); got != "08:00-18:00" {
		t.Fatalf("expected weekly hours without exception, got %s", got)
	}
}

func TestResolve_MalformedConfigIsClosed(t *testing.T) {
	monday := temporal.NewDate(2026, time.March, 2)
	cfg := Config{
		Weekly: []WeeklyHours{{Weekday: time.Monday, Open: wt("18:00"), Close: wt("08:00")}},
		Exceptions: []Exception{
			ExceptionFromFields("ex-1", monday.AddDays(7), false, ptr(wt("10:00")), nil, ""),
			{Date: monday.AddDays(14), Hours: OpenBetween(wt("12:00"), wt("12:00"))},
		},
	}
	for _, d := range []temporal.Date{monday, monday.AddDays(7), monday.AddDays(14)} {
		if !Resolve(cfg, d).IsClosed() {
			t.Fatalf("expected %s closed", d)
		}
	}
}

func TestValidateWeekly(t *testing.T) {
	if err := ValidateWeekly(garageWeek()); err != nil {
		t.Fatalf("expected valid week, got %v", err)
	}
	dup := append(garageWeek(), WeeklyHours{Weekday: time.Monday, Closed: true})
	if err := ValidateWeekly(dup); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	inverted := []WeeklyHours{{Weekday: time.Monday, Open: wt("18:00"), Close: wt("08:00")}}
	if err := ValidateWeekly(inverted); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ordering error, got %v", err)
	}
	// Times are ignored on closed days.
	if err := ValidateWeekly([]WeeklyHours{{Weekday: time.Sunday, Closed: true, Open: wt("10:00"), Close: wt("09:00")}}); err != nil {
		t.Fatalf("expected closed entry to pass, got %v", err)
	}
}

func TestNewException(t *testing.T) {
	d := temporal.NewDate(2026, time.May, 1)
	if _, err := NewException(d, false, ptr(wt("10:00")), nil, ""); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected missing close error, got %v", err)
	}
	if _, err := NewException(d, false, ptr(wt("12:00")), ptr(wt("10:00")), ""); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected ordering error, got %v", err)
	}
	if _, err := NewException(d, true, ptr(wt("10:00")), ptr(wt("12:00")), ""); !errors.Is(err, ErrInvalidHours) {
		t.Fatalf("expected closed-with-times error, got %v", err)
	}
	ex, err := NewException(d, true, nil, nil, "  Fête du travail ")
	if err != nil || !ex.Hours.IsClosed() || ex.Reason != "Fête du travail" {
		t.Fatalf("unexpected exception %+v (%v)", ex, err)
	}
}

func TestWeekdayNames(t *testing.T) {
	d, err := ParseWeekday("monday")
	if err != nil || d != time.Monday || WeekdayName(d) != "MONDAY" {
		t.Fatalf("unexpected weekday %v (%v)", d, err)
	}
	if _, err := ParseWeekday("LUNDI"); err == nil {
		t.Fatal("expected unknown weekday error")
	}
}
