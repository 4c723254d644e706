package model

import (
	"fmt"
	"time"
)

// Date is a calendar date with no timezone attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// DateOf takes the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight of the date in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	return DateOf(d.Time(time.UTC).AddDate(0, 0, n))
}

// Days counts days since 1970-01-01.
func (d Date) Days() int {
	return int(d.Time(time.UTC).Unix() / 86400)
}

func (d Date) Before(o Date) bool { return d.Days() < o.Days() }
func (d Date) After(o Date) bool  { return d.Days() > o.Days() }
func (d Date) IsZero() bool       { return d == Date{} }

func (d Date) String() string {
	return d.Time(time.UTC).Format(dateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// WallClock splits an instant into the calendar date and time of day observed in loc.
func WallClock(t time.Time, loc *time.Location) (Date, Clock) {
	if loc != nil {
		t = t.In(loc)
	}
	return DateOf(t), ClockOf(t)
}
