package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day without a date or zone.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" or "HH:MM:SS". Seconds are accepted and dropped.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	if hour == 24 && minute != 0 {
		return Clock{}, fmt.Errorf("invalid time %q", s)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// MustClock is ParseClock for literals known to be valid.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

// On places the clock on the calendar day of date, interpreted in loc.
// 24:00 resolves to the next local midnight.
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// ParseClockPtr parses an optional clock; empty input yields nil.
func ParseClockPtr(s string) (*Clock, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	c, err := ParseClock(s)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DateLayout is the storage and wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOf strips t to its calendar date as seen in t's own location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
