package model

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a time of day in whole seconds since midnight. 24:00:00 is allowed as a window end.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 24 * 60 * 60
)

func NewClock(hour, minute, second int) Clock {
	return Clock(hour*3600 + minute*60 + second)
}

func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute(), t.Second())
}

// ClockFromDuration truncates d to whole seconds.
func ClockFromDuration(d time.Duration) Clock {
	return Clock(d / time.Second)
}

// ParseClock accepts HH:MM or HH:MM:SS.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", s)
	}
	var fields [3]int
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
		fields[i] = n
	}
	h, m, sec := fields[0], fields[1], fields[2]
	if m > 59 || sec > 59 || h > 24 || (h == 24 && (m != 0 || sec != 0)) {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return NewClock(h, m, sec), nil
}

func (c Clock) Duration() time.Duration {
	return time.Duration(c) * time.Second
}

func (c Clock) Add(d time.Duration) Clock {
	return c + ClockFromDuration(d)
}

func (c Clock) Valid() bool {
	return c >= Midnight && c <= EndOfDay
}

// String renders HH:MM, or HH:MM:SS when seconds are set.
func (c Clock) String() string {
	h, m, s := int(c)/3600, (int(c)%3600)/60, int(c)%60
	if s != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", h, m)
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Overlaps reports whether the half-open ranges [a,b) and [c,d) intersect.
// Every overlap decision in the service goes through this predicate.
func Overlaps[T cmp.Ordered](a, b, c, d T) bool {
	return a < d && c < b
}
