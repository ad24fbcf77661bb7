package timeutil

import (
	"testing"
	"time"
)

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   time.Weekday
		wantOK bool
	}{
		{"lowercase", "monday", time.Monday, true},
		{"mixed case", "WedNesDay", time.Wednesday, true},
		{"padded", "  friday ", time.Friday, true},
		{"sunday", "sunday", time.Sunday, true},
		{"all is not a weekday", "all", time.Sunday, false},
		{"empty", "", time.Sunday, false},
		{"garbage", "mondayy", time.Sunday, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseWeekday(tt.in)
			if ok != tt.wantOK {
				t.Fatalf("ParseWeekday(%q) ok = %v, want %v",
					tt.in, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ParseWeekday(%q) = %v, want %v",
					tt.in, got, tt.want)
			}
		})
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2026-01-07 is a Wednesday.
	got, ok := WeekdayOf("2026-01-07")
	if !ok || got != time.Wednesday {
		t.Errorf("WeekdayOf(2026-01-07) = %v, %v; want Wednesday, true",
			got, ok)
	}
	if _, ok := WeekdayOf("not-a-date"); ok {
		t.Error("WeekdayOf accepted a malformed date")
	}
}

func TestLabels(t *testing.T) {
	if got := ClockLabel(9); got != "09:00" {
		t.Errorf("ClockLabel(9) = %q, want %q", got, "09:00")
	}
	if got := PeakLabel("2026-01-12", 15); got != "Monday, 2026-01-12 15:00" {
		t.Errorf("PeakLabel = %q", got)
	}
	// Unparseable date degrades to raw string, no weekday.
	if got := PeakLabel("??", 3); got != "?? 03:00" {
		t.Errorf("PeakLabel fallback = %q", got)
	}
}

func TestIsValidDate(t *testing.T) {
	if !IsValidDate("2026-02-28") {
		t.Error("rejected a valid date")
	}
	for _, s := range []string{"", "2026-13-01", "2026-1-1", "07/01/2026"} {
		if IsValidDate(s) {
			t.Errorf("accepted malformed date %q", s)
		}
	}
}
