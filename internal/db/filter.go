package db

import (
	"strconv"
	"strings"
	"time"

	"wattview/internal/timeutil"
)

// FloorFilter distinguishes "aggregate across all floors" from
// "this specific floor". The all-floors case maps to the NULL-floor
// rollup rows and to unfiltered reading scans; it is not a floor
// value that happens to be absent.
type FloorFilter struct {
	floor    int
	specific bool
}

// AllFloors is the whole-facility aggregate.
func AllFloors() FloorFilter {
	return FloorFilter{}
}

// OneFloor filters to a single floor. Floors below 1 do not exist,
// so they degrade to the all-floors filter per the lenient-filter
// convention.
func OneFloor(n int) FloorFilter {
	if n < 1 {
		return AllFloors()
	}
	return FloorFilter{floor: n, specific: true}
}

// ParseFloorFilter parses a floor query value. "", "all", and
// anything non-numeric or below 1 mean no floor filter.
func ParseFloorFilter(s string) FloorFilter {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return AllFloors()
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return AllFloors()
	}
	return OneFloor(n)
}

// All reports whether the filter spans all floors.
func (f FloorFilter) All() bool {
	return !f.specific
}

// Value returns the specific floor and true, or (0, false) for the
// all-floors filter.
func (f FloorFilter) Value() (int, bool) {
	if !f.specific {
		return 0, false
	}
	return f.floor, true
}

// String renders the filter as it appears in query parameters.
func (f FloorFilter) String() string {
	if !f.specific {
		return "all"
	}
	return strconv.Itoa(f.floor)
}

// Granularity selects the time bucketing mode for a query.
type Granularity string

const (
	GranularityDay  Granularity = "day"
	GranularityWeek Granularity = "week"
)

// ParseGranularity is lenient: anything but "week" is a day query.
func ParseGranularity(s string) Granularity {
	if strings.EqualFold(strings.TrimSpace(s), string(GranularityWeek)) {
		return GranularityWeek
	}
	return GranularityDay
}

// Filter is the shared query filter for all analytics operations.
// The zero value means: earliest available date, all floors, day
// granularity, no weekday pattern.
type Filter struct {
	Date        string      // YYYY-MM-DD; "" = earliest available
	Floor       FloorFilter //
	Granularity Granularity // "" treated as day
	Weekday     string      // weekday name or "all"; week mode only
	Limit       int         // top-N queries only
}

// WeekdayFilter returns the concrete weekday selected by the
// filter. It is only active in week granularity with a parseable
// weekday name; "all" and malformed names mean no weekday filter.
func (f Filter) WeekdayFilter() (time.Weekday, bool) {
	if f.Granularity != GranularityWeek {
		return time.Sunday, false
	}
	return timeutil.ParseWeekday(f.Weekday)
}
