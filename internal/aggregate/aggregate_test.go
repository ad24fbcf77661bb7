package aggregate

import (
	"math"
	"testing"
)

func sample(hour, minute int, current, energy float64) Sample {
	return Sample{Hour: hour, Minute: minute, Current: current, Energy: energy}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func TestHourlySeries(t *testing.T) {
	samples := []Sample{
		sample(10, 0, 4, 20),
		sample(10, 1, 6, 30),
		sample(11, 0, 7, 70),
		sample(9, 59, 1, 5),
	}

	series := HourlySeries(samples)
	if len(series) != 3 {
		t.Fatalf("got %d buckets, want 3", len(series))
	}

	// Ascending by hour.
	for i, wantHour := range []int{9, 10, 11} {
		if series[i].Hour != wantHour {
			t.Fatalf("series[%d].Hour = %d, want %d",
				i, series[i].Hour, wantHour)
		}
	}

	h10 := series[1]
	approx(t, "h10.AvgCurrent", h10.AvgCurrent, 5)
	approx(t, "h10.TotalEnergy", h10.TotalEnergy, 50)
	approx(t, "h10.MaxCurrent", h10.MaxCurrent, 6)
	approx(t, "h10.MaxEnergy", h10.MaxEnergy, 30)
	if h10.RecordCount != 2 {
		t.Errorf("h10.RecordCount = %d, want 2", h10.RecordCount)
	}
}

func TestHourlySeriesEmpty(t *testing.T) {
	if got := HourlySeries(nil); len(got) != 0 {
		t.Errorf("HourlySeries(nil) = %v, want empty", got)
	}
}

func TestDailyRollup(t *testing.T) {
	// Minute 10:00 has currents {2, 4} (mean 3), minute 10:01 has
	// {9} (mean 9). Group-then-average = 6, while the flat average
	// is 5. The distinct convention must win.
	samples := []Sample{
		sample(10, 0, 2, 10),
		sample(10, 0, 4, 10),
		sample(10, 1, 9, 10),
	}

	d := DailyRollup(samples)
	if d.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", d.TotalRecords)
	}
	approx(t, "AvgCurrent", d.AvgCurrent, 5)
	approx(t, "TotalEnergy", d.TotalEnergy, 30)
	if d.MinuteCount != 2 || d.HourCount != 1 {
		t.Errorf("counts = (%d, %d), want (2, 1)",
			d.MinuteCount, d.HourCount)
	}
	approx(t, "AvgCurrentPerMinute", d.AvgCurrentPerMinute, 6)
	approx(t, "AvgCurrentPerHour", d.AvgCurrentPerHour, 5)
}

func TestDailyRollupSameMinuteDifferentHour(t *testing.T) {
	// 09:30 and 10:30 share the minute value 30: one distinct
	// minute, two distinct hours, matching COUNT(DISTINCT minute).
	d := DailyRollup([]Sample{
		sample(9, 30, 1, 1),
		sample(10, 30, 3, 1),
	})
	if d.MinuteCount != 1 {
		t.Errorf("MinuteCount = %d, want 1", d.MinuteCount)
	}
	if d.HourCount != 2 {
		t.Errorf("HourCount = %d, want 2", d.HourCount)
	}
	// The pooled minute group has currents {1, 3}: its mean is 2.
	approx(t, "AvgCurrentPerMinute", d.AvgCurrentPerMinute, 2)
}

func TestDailyRollupEmpty(t *testing.T) {
	d := DailyRollup(nil)
	if d.TotalRecords != 0 {
		t.Errorf("TotalRecords = %d, want 0", d.TotalRecords)
	}
	// Distinct counts are floored at 1 so derived rates never
	// divide by zero.
	if d.MinuteCount != 1 || d.HourCount != 1 {
		t.Errorf("counts = (%d, %d), want (1, 1)",
			d.MinuteCount, d.HourCount)
	}
}

func TestPeakHour(t *testing.T) {
	series := HourlySeries([]Sample{
		sample(10, 0, 1, 80),
		sample(11, 0, 1, 70),
		sample(12, 0, 1, 20),
	})
	peak, ok := PeakHour(series)
	if !ok {
		t.Fatal("PeakHour returned no peak")
	}
	if peak.Hour != 10 {
		t.Errorf("peak.Hour = %d, want 10", peak.Hour)
	}
}

func TestPeakHourTieBreak(t *testing.T) {
	// Equal energy in hours 7 and 15: the lower hour must win,
	// deterministically.
	series := HourlySeries([]Sample{
		sample(15, 0, 1, 40),
		sample(7, 0, 1, 40),
		sample(3, 0, 1, 10),
	})
	for range 20 {
		peak, ok := PeakHour(series)
		if !ok || peak.Hour != 7 {
			t.Fatalf("peak = %+v, ok=%v; want hour 7", peak, ok)
		}
	}
}

func TestPeakHourEmpty(t *testing.T) {
	if _, ok := PeakHour(nil); ok {
		t.Error("PeakHour(nil) reported a peak")
	}
}

func TestRounding(t *testing.T) {
	approx(t, "Round2", Round2(3.14159), 3.14)
	approx(t, "Round5", Round5(0.000014999), 0.00001)
}
