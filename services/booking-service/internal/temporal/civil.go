// Package temporal converts between a business's local wall clock and absolute
// instants. Everything here is pure.
package temporal

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidWallTime = errors.New("invalid time, expected HH:MM")
)

var (
	dateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	wallTimeRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Date is a calendar date with no zone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate accepts YYYY-MM-DD and rejects out-of-range components such as 2026-02-30.
func ParseDate(s string) (Date, error) {
	if !dateRe.MatchString(s) {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n))
}

func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

func (d Date) Before(o Date) bool {
	return d.midnightUTC().Before(o.midnightUTC())
}

// DaysUntil returns the number of calendar days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int(o.midnightUTC().Sub(d.midnightUTC()) / (24 * time.Hour))
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WallTime is a local time of day with minute precision.
type WallTime struct {
	Hour   int
	Minute int
}

// ParseWallTime accepts 24-hour "HH:MM" only.
func ParseWallTime(s string) (WallTime, error) {
	if !wallTimeRe.MatchString(s) {
		return WallTime{}, fmt.Errorf("%w: %q", ErrInvalidWallTime, s)
	}
	return WallTime{
		Hour:   int(s[0]-'0')*10 + int(s[1]-'0'),
		Minute: int(s[3]-'0')*10 + int(s[4]-'0'),
	}, nil
}

func MustWallTime(s string) WallTime {
	w, err := ParseWallTime(s)
	if err != nil {
		panic(err)
	}
	return w
}

func (w WallTime) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// Minutes since local midnight.
func (w WallTime) Minutes() int { return w.Hour*60 + w.Minute }

func (w WallTime) Before(o WallTime) bool { return w.Minutes() < o.Minutes() }

func (w WallTime) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WallTime) UnmarshalText(b []byte) error {
	parsed, err := ParseWallTime(string(b))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DateTime is a civil (wall clock) date and time.
type DateTime struct {
	Date Date
	Time WallTime
}

func (dt DateTime) String() string {
	return dt.Date.String() + "T" + dt.Time.String()
}
