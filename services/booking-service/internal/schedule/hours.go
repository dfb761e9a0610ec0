// Package schedule resolves a business's effective opening hours for one local date.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garagebook/garagebook/services/booking-service/internal/temporal"
)

// ErrInvalidHours is returned when saved hours violate their invariants.
var ErrInvalidHours = errors.New("invalid business hours")

// DayHours is either closed or open between two local wall times.
type DayHours struct {
	open      bool
	openTime  temporal.WallTime
	closeTime temporal.WallTime
}

func Closed() DayHours { return DayHours{} }

// OpenBetween builds an open day. It does not validate ordering; Resolve treats
// open >= close as closed.
func OpenBetween(open, close temporal.WallTime) DayHours {
	return DayHours{open: true, openTime: open, closeTime: close}
}

func (h DayHours) IsClosed() bool {
	return !h.open || !h.openTime.Before(h.closeTime)
}

// Window returns the open and close times when the day is open.
func (h DayHours) Window() (temporal.WallTime, temporal.WallTime, bool) {
	if h.IsClosed() {
		return temporal.WallTime{}, temporal.WallTime{}, false
	}
	return h.openTime, h.closeTime, true
}

func (h DayHours) String() string {
	if o, c, ok := h.Window(); ok {
		return o.String() + "-" + c.String()
	}
	return "closed"
}

// WeeklyHours is the recurring entry for one weekday.
type WeeklyHours struct {
	Weekday time.Weekday
	Open    temporal.WallTime
	Close   temporal.WallTime
	Closed  bool
}

func (w WeeklyHours) Hours() DayHours {
	if w.Closed {
		return Closed()
	}
	return OpenBetween(w.Open, w.Close)
}

// Exception overrides the weekly entry for one local date.
type Exception struct {
	ID     string
	Date   temporal.Date
	Hours  DayHours
	Reason string
}

// ExceptionFromFields maps stored nullable columns onto the tagged form. A row
// that is not closed but lacks either time resolves as closed.
func ExceptionFromFields(id string, date temporal.Date, closed bool, open, close *temporal.WallTime, reason string) Exception {
	hours := Closed()
	if !closed && open != nil && close != nil {
		hours = OpenBetween(*open, *close)
	}
	return Exception{ID: id, Date: date, Hours: hours, Reason: reason}
}

// Config is the schedule-relevant part of a business.
type Config struct {
	Weekly     []WeeklyHours
	Exceptions []Exception
}

// Resolve returns the effective hours for date. An exception on that date wins
// unconditionally; otherwise the weekly entry for the date's weekday applies and
// a missing entry means closed.
func Resolve(cfg Config, date temporal.Date) DayHours {
	for _, ex := range cfg.Exceptions {
		if ex.Date == date {
			if ex.Hours.IsClosed() {
				return Closed()
			}
			return ex.Hours
		}
	}
	wd := date.Weekday()
	for _, w := range cfg.Weekly {
		if w.Weekday == wd {
			h := w.Hours()
			if h.IsClosed() {
				return Closed()
			}
			return h
		}
	}
	return Closed()
}

// ValidateWeekly checks a full weekly schedule before it is saved.
func ValidateWeekly(entries []WeeklyHours) error {
	seen := map[time.Weekday]bool{}
	for _, e := range entries {
		if e.Weekday < time.Sunday || e.Weekday > time.Saturday {
			return fmt.Errorf("%w: unknown weekday %d", ErrInvalidHours, e.Weekday)
		}
		if seen[e.Weekday] {
			return fmt.Errorf("%w: duplicate entry for %s", ErrInvalidHours, WeekdayName(e.Weekday))
		}
		seen[e.Weekday] = true
		if !e.Closed && !e.Open.Before(e.Close) {
			return fmt.Errorf("%w: %s opens at %s but closes at %s", ErrInvalidHours, WeekdayName(e.Weekday), e.Open, e.Close)
		}
	}
	return nil
}

// NewException validates owner input and builds the exception. Times are required
// unless the day is closed, and must be absent when it is.
func NewException(date temporal.Date, closed bool, open, close *temporal.WallTime, reason string) (Exception, error) {
	if date.IsZero() {
		return Exception{}, fmt.Errorf("%w: exception date is required", ErrInvalidHours)
	}
	reason = strings.TrimSpace(reason)
	if closed {
		if open != nil || close != nil {
			return Exception{}, fmt.Errorf("%w: a closed exception cannot carry times", ErrInvalidHours)
		}
		return Exception{Date: date, Hours: Closed(), Reason: reason}, nil
	}
	if open == nil || close == nil {
		return Exception{}, fmt.Errorf("%w: open and close times are required when not closed", ErrInvalidHours)
	}
	if !open.Before(*close) {
		return Exception{}, fmt.Errorf("%w: exception opens at %s but closes at %s", ErrInvalidHours, open, close)
	}
	return Exception{Date: date, Hours: OpenBetween(*open, *close), Reason: reason}, nil
}

var weekdayNames = [...]string{"SUNDAY", "MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY"}

// WeekdayName returns the wire name, e.g. MONDAY.
func WeekdayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return weekdayNames[d]
}

func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if name == s {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidHours, s)
}
