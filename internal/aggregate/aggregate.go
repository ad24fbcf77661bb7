// Package aggregate holds the pure aggregation formulas shared by
// the rollup builder and the query-time fallback paths. Both must
// produce numerically identical results, so neither reimplements
// anything found here.
package aggregate

import (
	"math"
	"sort"
)

// Sample is one raw reading, already filtered to the date/floor
// set under aggregation.
type Sample struct {
	Floor   *int
	Hour    int
	Minute  int
	Second  int
	Current float64
	Energy  float64
}

// Hourly is the aggregate for one hour bucket, mirroring a
// hourly_summary row.
type Hourly struct {
	Hour        int
	AvgCurrent  float64
	TotalEnergy float64
	MaxCurrent  float64
	MaxEnergy   float64
	RecordCount int
}

// Daily mirrors a daily_summary row.
type Daily struct {
	TotalRecords        int
	AvgCurrent          float64
	TotalEnergy         float64
	MinuteCount         int
	AvgCurrentPerMinute float64
	HourCount           int
	AvgCurrentPerHour   float64
}

// hourlyAcc accumulates sum/count/max so averages are computed
// once at the end.
type hourlyAcc struct {
	currentSum  float64
	energySum   float64
	maxCurrent  float64
	maxEnergy   float64
	recordCount int
}

func (a *hourlyAcc) add(s Sample) {
	a.currentSum += s.Current
	a.energySum += s.Energy
	if s.Current > a.maxCurrent {
		a.maxCurrent = s.Current
	}
	if s.Energy > a.maxEnergy {
		a.maxEnergy = s.Energy
	}
	a.recordCount++
}

// HourlySeries groups samples by hour and returns one Hourly per
// observed hour, ascending. Hours with no samples are omitted.
func HourlySeries(samples []Sample) []Hourly {
	buckets := make(map[int]*hourlyAcc)
	for _, s := range samples {
		acc, ok := buckets[s.Hour]
		if !ok {
			acc = &hourlyAcc{}
			buckets[s.Hour] = acc
		}
		acc.add(s)
	}

	series := make([]Hourly, 0, len(buckets))
	for hour, acc := range buckets {
		series = append(series, Hourly{
			Hour:        hour,
			AvgCurrent:  acc.currentSum / float64(acc.recordCount),
			TotalEnergy: acc.energySum,
			MaxCurrent:  acc.maxCurrent,
			MaxEnergy:   acc.maxEnergy,
			RecordCount: acc.recordCount,
		})
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Hour < series[j].Hour
	})
	return series
}

// DailyRollup computes the daily aggregate for one (date, floor)
// combination.
//
// MinuteCount and HourCount are distinct counts over the observed
// samples, floored at 1 so the derived per-minute/per-hour energy
// rates never divide by zero. AvgCurrentPerMinute is the unweighted
// mean, across distinct minutes, of each minute's own mean current
// (group-then-average, not a record-weighted flat average); the
// per-hour figure follows the same convention.
func DailyRollup(samples []Sample) Daily {
	d := Daily{MinuteCount: 1, HourCount: 1}
	if len(samples) == 0 {
		return d
	}

	// Minutes are keyed by the raw minute-of-hour value: 09:30 and
	// 10:30 fall into the same group. That matches the store's
	// COUNT(DISTINCT minute) / GROUP BY minute convention, which
	// this rollup must agree with.
	minutes := make(map[int]*groupAcc)
	hours := make(map[int]*groupAcc)

	var currentSum float64
	for _, s := range samples {
		d.TotalRecords++
		currentSum += s.Current
		d.TotalEnergy += s.Energy

		if minutes[s.Minute] == nil {
			minutes[s.Minute] = &groupAcc{}
		}
		minutes[s.Minute].sum += s.Current
		minutes[s.Minute].count++

		if hours[s.Hour] == nil {
			hours[s.Hour] = &groupAcc{}
		}
		hours[s.Hour].sum += s.Current
		hours[s.Hour].count++
	}

	d.AvgCurrent = currentSum / float64(d.TotalRecords)
	d.MinuteCount = len(minutes)
	d.HourCount = len(hours)

	d.AvgCurrentPerMinute = meanOfGroupMeans(minutes)
	d.AvgCurrentPerHour = meanOfGroupMeans(hours)
	return d
}

func meanOfGroupMeans(groups map[int]*groupAcc) float64 {
	if len(groups) == 0 {
		return 0
	}
	var total float64
	for _, g := range groups {
		total += g.sum / float64(g.count)
	}
	return total / float64(len(groups))
}

type groupAcc struct {
	sum   float64
	count int
}

// PeakHour selects the hour with the maximum TotalEnergy from a
// series sorted hour-ascending. The series is stable-sorted
// descending by energy and the first entry wins, so ties resolve
// to the lowest-numbered hour. This is the only tie-break
// implementation; callers must not re-derive it.
func PeakHour(series []Hourly) (Hourly, bool) {
	if len(series) == 0 {
		return Hourly{}, false
	}
	ranked := make([]Hourly, len(series))
	copy(ranked, series)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].TotalEnergy > ranked[j].TotalEnergy
	})
	return ranked[0], true
}

// Round2 rounds to 2 decimal places for display fields.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round5 rounds to 5 decimal places, used for per-second energy
// which is typically very small.
func Round5(v float64) float64 {
	return math.Round(v*100000) / 100000
}
