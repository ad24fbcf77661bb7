package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used everywhere:
// readings, summary tables, query parameters, and responses.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsValidDate reports whether s is a well-formed YYYY-MM-DD string.
func IsValidDate(s string) bool {
	_, ok := ParseDate(s)
	return ok
}

// WeekdayOf returns the day of week for a YYYY-MM-DD date.
func WeekdayOf(date string) (time.Weekday, bool) {
	t, ok := ParseDate(date)
	if !ok {
		return time.Sunday, false
	}
	return t.Weekday(), true
}

// ParseWeekday maps a weekday name ("monday".."sunday", any case)
// to a time.Weekday. Unrecognized names return false.
func ParseWeekday(s string) (time.Weekday, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday":
		return time.Sunday, true
	case "monday":
		return time.Monday, true
	case "tuesday":
		return time.Tuesday, true
	case "wednesday":
		return time.Wednesday, true
	case "thursday":
		return time.Thursday, true
	case "friday":
		return time.Friday, true
	case "saturday":
		return time.Saturday, true
	}
	return time.Sunday, false
}

// WeekdayName returns the lowercase name used in filters and
// responses ("monday".."sunday").
func WeekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// ClockLabel formats an hour of day as a short clock time ("15:00").
func ClockLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// PeakLabel formats a peak hour as a full weekday/date/time string,
// e.g. "Monday, 2026-01-12 15:00". An unparseable date falls back
// to the raw date string.
func PeakLabel(date string, hour int) string {
	t, ok := ParseDate(date)
	if !ok {
		return fmt.Sprintf("%s %s", date, ClockLabel(hour))
	}
	return fmt.Sprintf("%s, %s %s",
		t.Weekday().String(), date, ClockLabel(hour))
}
