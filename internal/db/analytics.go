package db

import (
	"context"
	"sort"
	"strconv"
	"time"

	"wattview/internal/aggregate"
	"wattview/internal/timeutil"
)

// Analytics answers the dashboard's read queries. It is stateless:
// every operation prefers the rollup tables and falls back to raw
// aggregation (through internal/aggregate, the same formulas the
// builder uses) whenever a rollup row is missing or the tables are
// mid-rebuild.
type Analytics struct {
	db         *DB
	costPerKWh float64
}

// NewAnalytics creates the query service. costPerKWh is the fixed
// tariff applied by the consumption metrics.
func NewAnalytics(db *DB, costPerKWh float64) *Analytics {
	return &Analytics{db: db, costPerKWh: costPerKWh}
}

// resolveDates determines the set of dates an operation queries:
// the explicit date when given; every date matching the weekday
// pattern in week mode; otherwise the earliest available date.
// An empty result means no data exists at all (or no date matches
// the weekday), which is a well-formed empty response, not an
// error.
func (a *Analytics) resolveDates(
	ctx context.Context, f Filter,
) ([]string, error) {
	if f.Date != "" && timeutil.IsValidDate(f.Date) {
		return []string{f.Date}, nil
	}

	dates, err := a.db.ListDates(ctx)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	if wd, ok := f.WeekdayFilter(); ok {
		return datesOnWeekday(dates, wd), nil
	}
	return dates[:1], nil
}

// datesOnWeekday filters an ascending date list to those falling
// on the given day of week, across the full range.
func datesOnWeekday(dates []string, wd time.Weekday) []string {
	var out []string
	for _, d := range dates {
		if got, ok := timeutil.WeekdayOf(d); ok && got == wd {
			out = append(out, d)
		}
	}
	return out
}

// --- Summary ---

// Summary is the response for the summary operation. The per_*
// fields are average energy per time bucket; per_day is the total.
// Display rounding: currents 2dp, per-second energy 5dp, the rest
// 2dp.
type Summary struct {
	Date                string  `json:"date"`
	DateCount           int     `json:"date_count"`
	TotalRecords        int     `json:"total_records"`
	AvgCurrent          float64 `json:"avg_current"`
	AvgCurrentPerMinute float64 `json:"avg_current_per_minute"`
	AvgCurrentPerHour   float64 `json:"avg_current_per_hour"`
	PerSecond           float64 `json:"per_second"`
	PerMinute           float64 `json:"per_minute"`
	PerHour             float64 `json:"per_hour"`
	PerDay              float64 `json:"per_day"`
}

// GetSummary returns the multi-granularity energy summary for the
// filter's date (or weekday date set). No data yields an explicit
// all-zero response.
func (a *Analytics) GetSummary(
	ctx context.Context, f Filter,
) (Summary, error) {
	dates, err := a.resolveDates(ctx, f)
	if err != nil {
		return Summary{}, err
	}
	if len(dates) == 0 {
		return Summary{}, nil
	}

	var d aggregate.Daily
	usedRollup := false

	if len(dates) == 1 {
		row, err := a.db.GetDailySummary(ctx, dates[0], f.Floor)
		if err != nil {
			return Summary{}, err
		}
		if row != nil {
			// The distinct counts are recomputed against the raw
			// store rather than trusted from the rollup row, in
			// case the row predates newly appended readings.
			minutes, hours, err := a.db.DistinctTimeCounts(
				ctx, dates[0], f.Floor)
			if err != nil {
				return Summary{}, err
			}
			d = aggregate.Daily{
				TotalRecords:        row.TotalRecords,
				AvgCurrent:          row.AvgCurrent,
				TotalEnergy:         row.TotalEnergy,
				MinuteCount:         minutes,
				AvgCurrentPerMinute: row.AvgCurrentPerMinute,
				HourCount:           hours,
				AvgCurrentPerHour:   row.AvgCurrentPerHour,
			}
			usedRollup = true
		}
	}

	if !usedRollup {
		samples, err := a.db.Samples(ctx, dates, f.Floor, nil)
		if err != nil {
			return Summary{}, err
		}
		d = aggregate.DailyRollup(samples)
	}

	s := Summary{
		Date:         dates[0],
		DateCount:    len(dates),
		TotalRecords: d.TotalRecords,
		AvgCurrent:   aggregate.Round2(d.AvgCurrent),
		AvgCurrentPerMinute: aggregate.Round2(
			d.AvgCurrentPerMinute),
		AvgCurrentPerHour: aggregate.Round2(d.AvgCurrentPerHour),
		PerDay:            aggregate.Round2(d.TotalEnergy),
	}
	if d.TotalRecords > 0 {
		s.PerSecond = aggregate.Round5(
			d.TotalEnergy / float64(d.TotalRecords))
	}
	if d.MinuteCount > 0 {
		s.PerMinute = aggregate.Round2(
			d.TotalEnergy / float64(d.MinuteCount))
	}
	if d.HourCount > 0 {
		s.PerHour = aggregate.Round2(
			d.TotalEnergy / float64(d.HourCount))
	}
	return s, nil
}

// --- Hourly breakdown ---

// HourPoint is one hour bucket in the hourly breakdown.
type HourPoint struct {
	Hour        int     `json:"hour"`
	Time        string  `json:"time"`
	AvgCurrent  float64 `json:"avg_current"`
	TotalEnergy float64 `json:"total_energy"`
	MaxCurrent  float64 `json:"max_current"`
	MaxEnergy   float64 `json:"max_energy"`
	RecordCount int     `json:"record_count"`
}

// PeakHour identifies the hour with the highest total energy.
type PeakHour struct {
	Hour        int     `json:"hour"`
	Date        string  `json:"date"`
	TotalEnergy float64 `json:"total_energy"`
	Time        string  `json:"time"`
	Label       string  `json:"label"`
}

// HourlyData is the response for the hourly breakdown operation.
type HourlyData struct {
	HourlyData []HourPoint `json:"hourly_data"`
	PeakHour   *PeakHour   `json:"peak_hour,omitempty"`
}

// GetHourlyData returns the per-hour breakdown for the filter's
// date set, with the peak hour attached.
//
// A single date reads the hourly rollups directly; a multi-date
// weekday set re-aggregates raw readings across the union, since
// per-date summary rows cannot be combined for avg/max. Either
// path falls back to raw aggregation when it yields no rows.
func (a *Analytics) GetHourlyData(
	ctx context.Context, f Filter,
) (HourlyData, error) {
	dates, err := a.resolveDates(ctx, f)
	if err != nil {
		return HourlyData{}, err
	}
	if len(dates) == 0 {
		return HourlyData{HourlyData: []HourPoint{}}, nil
	}

	var series []aggregate.Hourly
	if len(dates) == 1 {
		rows, err := a.db.GetHourlySummaries(ctx, dates[0], f.Floor)
		if err != nil {
			return HourlyData{}, err
		}
		for _, r := range rows {
			series = append(series, aggregate.Hourly{
				Hour:        r.Hour,
				AvgCurrent:  r.AvgCurrent,
				TotalEnergy: r.TotalEnergy,
				MaxCurrent:  r.MaxCurrent,
				MaxEnergy:   r.MaxEnergy,
				RecordCount: r.RecordCount,
			})
		}
	}

	if len(series) == 0 {
		samples, err := a.db.Samples(ctx, dates, f.Floor, nil)
		if err != nil {
			return HourlyData{}, err
		}
		series = aggregate.HourlySeries(samples)
	}

	resp := HourlyData{HourlyData: make([]HourPoint, 0, len(series))}
	for _, h := range series {
		resp.HourlyData = append(resp.HourlyData, HourPoint{
			Hour:        h.Hour,
			Time:        timeutil.ClockLabel(h.Hour),
			AvgCurrent:  aggregate.Round2(h.AvgCurrent),
			TotalEnergy: aggregate.Round2(h.TotalEnergy),
			MaxCurrent:  aggregate.Round2(h.MaxCurrent),
			MaxEnergy:   aggregate.Round2(h.MaxEnergy),
			RecordCount: h.RecordCount,
		})
	}

	peak, ok := aggregate.PeakHour(series)
	if !ok {
		return resp, nil
	}

	peakDate := dates[0]
	if len(dates) > 1 {
		peakDate, err = a.peakDate(ctx, dates, peak.Hour, f.Floor)
		if err != nil {
			return HourlyData{}, err
		}
	}
	resp.PeakHour = &PeakHour{
		Hour:        peak.Hour,
		Date:        peakDate,
		TotalEnergy: aggregate.Round2(peak.TotalEnergy),
		Time:        timeutil.ClockLabel(peak.Hour),
		Label:       timeutil.PeakLabel(peakDate, peak.Hour),
	}
	return resp, nil
}

// peakDate recovers which of the matching dates carried the peak:
// the one whose hourly rollup at the peak hour has the highest
// energy, first match winning ties in date order. Unpopulated
// rollups fall back to raw per-date sums at that hour.
func (a *Analytics) peakDate(
	ctx context.Context, dates []string, hour int, floor FloorFilter,
) (string, error) {
	energy, err := a.db.HourlyEnergyByDate(ctx, dates, hour, floor)
	if err != nil {
		return "", err
	}
	if len(energy) == 0 {
		energy, err = a.db.EnergyByDateAtHour(ctx, dates, hour, floor)
		if err != nil {
			return "", err
		}
	}

	best := dates[0]
	bestEnergy := -1.0
	for _, d := range dates {
		if e, ok := energy[d]; ok && e > bestEnergy {
			best = d
			bestEnergy = e
		}
	}
	return best, nil
}

// --- Weekly peak pattern ---

// WeekdayPeak is the peak hour for one day of week across the
// full date range. SampleDate is the earliest matching date, used
// only for formatting the label.
type WeekdayPeak struct {
	Weekday     string  `json:"weekday"`
	Hour        int     `json:"hour"`
	TotalEnergy float64 `json:"total_energy"`
	SampleDate  string  `json:"sample_date"`
	Time        string  `json:"time"`
	Label       string  `json:"label"`
}

// WeeklyPeaks is the response for the weekly peak operation.
type WeeklyPeaks struct {
	Peaks []WeekdayPeak `json:"peaks"`
}

// weekdayOrder lists the seven weekdays in response order.
var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// GetWeeklyPeakHours computes, for each weekday, the hour with the
// highest summed energy over every matching date in the range.
// Weekdays with no matching data are omitted, not zero-filled.
// Only the floor filter applies.
func (a *Analytics) GetWeeklyPeakHours(
	ctx context.Context, f Filter,
) (WeeklyPeaks, error) {
	dates, err := a.db.ListDates(ctx)
	if err != nil {
		return WeeklyPeaks{}, err
	}

	resp := WeeklyPeaks{Peaks: []WeekdayPeak{}}
	for _, wd := range weekdayOrder {
		wdDates := datesOnWeekday(dates, wd)
		if len(wdDates) == 0 {
			continue
		}

		samples, err := a.db.Samples(ctx, wdDates, f.Floor, nil)
		if err != nil {
			return WeeklyPeaks{}, err
		}
		peak, ok := aggregate.PeakHour(aggregate.HourlySeries(samples))
		if !ok {
			continue
		}

		sampleDate := wdDates[0]
		resp.Peaks = append(resp.Peaks, WeekdayPeak{
			Weekday:     timeutil.WeekdayName(wd),
			Hour:        peak.Hour,
			TotalEnergy: aggregate.Round2(peak.TotalEnergy),
			SampleDate:  sampleDate,
			Time:        timeutil.ClockLabel(peak.Hour),
			Label:       timeutil.PeakLabel(sampleDate, peak.Hour),
		})
	}
	return resp, nil
}

// --- Floor analytics ---

// TrendPoint is one date's summed energy in a floor's trend.
type TrendPoint struct {
	Date        string  `json:"date"`
	TotalEnergy float64 `json:"total_energy"`
}

// FloorStats is the multi-metric shape for one floor.
type FloorStats struct {
	Floor       int          `json:"floor"`
	TotalEnergy float64      `json:"total_energy"`
	RecordCount int          `json:"record_count"`
	AvgEnergy   float64      `json:"avg_energy"`
	PeakHour    int          `json:"peak_hour"`
	PeakEnergy  float64      `json:"peak_energy"`
	Trend       []TrendPoint `json:"trend"`
}

// FloorAnalytics is the response for the floor analytics
// operation.
type FloorAnalytics struct {
	Floors []FloorStats `json:"floors"`
}

// GetFloorAnalytics shapes per-floor metrics from raw readings.
// The rollup tables are not used: this multi-metric per-floor
// shape is not pre-aggregated. Floor 0 and untagged readings are
// always excluded.
func (a *Analytics) GetFloorAnalytics(
	ctx context.Context, f Filter,
) (FloorAnalytics, error) {
	rows, err := a.db.FloorDatedSamples(ctx, f.Floor)
	if err != nil {
		return FloorAnalytics{}, err
	}

	type floorAcc struct {
		samples []aggregate.Sample
		byDate  map[string]float64
	}
	floors := make(map[int]*floorAcc)
	for _, r := range rows {
		acc, ok := floors[r.Floor]
		if !ok {
			acc = &floorAcc{byDate: make(map[string]float64)}
			floors[r.Floor] = acc
		}
		acc.samples = append(acc.samples, r.Sample)
		acc.byDate[r.Date] += r.Sample.Energy
	}

	resp := FloorAnalytics{Floors: make([]FloorStats, 0, len(floors))}
	for floor, acc := range floors {
		var total float64
		for _, s := range acc.samples {
			total += s.Energy
		}

		fs := FloorStats{
			Floor:       floor,
			TotalEnergy: aggregate.Round2(total),
			RecordCount: len(acc.samples),
		}
		if fs.RecordCount > 0 {
			fs.AvgEnergy = aggregate.Round2(
				total / float64(fs.RecordCount))
		}
		if peak, ok := aggregate.PeakHour(
			aggregate.HourlySeries(acc.samples)); ok {
			fs.PeakHour = peak.Hour
			fs.PeakEnergy = aggregate.Round2(peak.TotalEnergy)
		}

		fs.Trend = make([]TrendPoint, 0, len(acc.byDate))
		for date, energy := range acc.byDate {
			fs.Trend = append(fs.Trend, TrendPoint{
				Date:        date,
				TotalEnergy: aggregate.Round2(energy),
			})
		}
		sort.Slice(fs.Trend, func(i, j int) bool {
			return fs.Trend[i].Date < fs.Trend[j].Date
		})

		resp.Floors = append(resp.Floors, fs)
	}
	sort.Slice(resp.Floors, func(i, j int) bool {
		return resp.Floors[i].Floor < resp.Floors[j].Floor
	})
	return resp, nil
}

// --- Derived consumption metrics ---

const whPerKWh = 1000

// defaultTopLimit bounds the top-consumers list when no limit is
// given.
const defaultTopLimit = 5

// UnitConsumption is one unit's consumption converted to kWh and
// cost.
type UnitConsumption struct {
	Floor         int     `json:"floor"`
	Name          string  `json:"name"`
	EquipmentType string  `json:"equipment_type,omitempty"`
	EnergyKWh     float64 `json:"energy_kwh"`
	Cost          float64 `json:"cost"`
	RecordCount   int     `json:"record_count"`
}

// TopUnits is the response for the top-consumers operation.
type TopUnits struct {
	Units []UnitConsumption `json:"units"`
}

// floorConsumption builds per-floor consumption rows joined to
// unit metadata for the filter's resolved date set.
func (a *Analytics) floorConsumption(
	ctx context.Context, f Filter,
) ([]UnitConsumption, error) {
	dates, err := a.resolveDates(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, nil
	}

	totals, err := a.db.FloorTotals(ctx, dates, f.Floor)
	if err != nil {
		return nil, err
	}
	units, err := a.db.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	byFloor := make(map[int]Unit, len(units))
	for _, u := range units {
		if _, ok := byFloor[u.Floor]; !ok {
			byFloor[u.Floor] = u
		}
	}

	out := make([]UnitConsumption, 0, len(totals))
	for _, t := range totals {
		kwh := t.TotalEnergy / whPerKWh
		uc := UnitConsumption{
			Floor:       t.Floor,
			Name:        "Floor " + strconv.Itoa(t.Floor),
			EnergyKWh:   aggregate.Round2(kwh),
			Cost:        aggregate.Round2(kwh * a.costPerKWh),
			RecordCount: t.RecordCount,
		}
		if u, ok := byFloor[t.Floor]; ok {
			uc.Name = u.Name
			uc.EquipmentType = u.EquipmentType
		}
		out = append(out, uc)
	}
	return out, nil
}

// GetTopConsumingUnits ranks units by energy, descending, limited
// to the filter's Limit (default 5).
func (a *Analytics) GetTopConsumingUnits(
	ctx context.Context, f Filter,
) (TopUnits, error) {
	rows, err := a.floorConsumption(ctx, f)
	if err != nil {
		return TopUnits{}, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].EnergyKWh > rows[j].EnergyKWh
	})
	limit := f.Limit
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if rows == nil {
		rows = []UnitConsumption{}
	}
	return TopUnits{Units: rows}, nil
}

// GroupMetric is a consumption aggregate keyed by a metadata group
// (equipment type, building, or branch).
type GroupMetric struct {
	Name        string  `json:"name"`
	Floors      int     `json:"floors"`
	EnergyKWh   float64 `json:"energy_kwh"`
	Cost        float64 `json:"cost"`
	RecordCount int     `json:"record_count"`
}

// GroupMetrics is the response for the grouped consumption
// operations.
type GroupMetrics struct {
	Groups []GroupMetric `json:"groups"`
}

// groupedConsumption folds per-floor consumption by a metadata
// key. Floors without metadata land in the fallback group.
func (a *Analytics) groupedConsumption(
	ctx context.Context, f Filter,
	key func(UnitConsumption) string, fallback string,
) (GroupMetrics, error) {
	rows, err := a.floorConsumption(ctx, f)
	if err != nil {
		return GroupMetrics{}, err
	}

	groups := make(map[string]*GroupMetric)
	for _, r := range rows {
		name := key(r)
		if name == "" {
			name = fallback
		}
		g, ok := groups[name]
		if !ok {
			g = &GroupMetric{Name: name}
			groups[name] = g
		}
		g.Floors++
		g.EnergyKWh += r.EnergyKWh
		g.Cost += r.Cost
		g.RecordCount += r.RecordCount
	}

	resp := GroupMetrics{Groups: make([]GroupMetric, 0, len(groups))}
	for _, g := range groups {
		g.EnergyKWh = aggregate.Round2(g.EnergyKWh)
		g.Cost = aggregate.Round2(g.Cost)
		resp.Groups = append(resp.Groups, *g)
	}
	sort.Slice(resp.Groups, func(i, j int) bool {
		if resp.Groups[i].EnergyKWh != resp.Groups[j].EnergyKWh {
			return resp.Groups[i].EnergyKWh > resp.Groups[j].EnergyKWh
		}
		return resp.Groups[i].Name < resp.Groups[j].Name
	})
	return resp, nil
}

// GetConsumptionByEquipmentType groups consumption by the units
// table's equipment type.
func (a *Analytics) GetConsumptionByEquipmentType(
	ctx context.Context, f Filter,
) (GroupMetrics, error) {
	return a.groupedConsumption(ctx, f,
		func(u UnitConsumption) string { return u.EquipmentType },
		"unclassified")
}

// GetBuildingMetrics groups consumption by building.
func (a *Analytics) GetBuildingMetrics(
	ctx context.Context, f Filter,
) (GroupMetrics, error) {
	units, err := a.unitIndex(ctx)
	if err != nil {
		return GroupMetrics{}, err
	}
	return a.groupedConsumption(ctx, f,
		func(u UnitConsumption) string {
			return units[u.Floor].Building
		}, "unassigned")
}

// GetBranchMetrics groups consumption by branch.
func (a *Analytics) GetBranchMetrics(
	ctx context.Context, f Filter,
) (GroupMetrics, error) {
	units, err := a.unitIndex(ctx)
	if err != nil {
		return GroupMetrics{}, err
	}
	return a.groupedConsumption(ctx, f,
		func(u UnitConsumption) string {
			return units[u.Floor].Branch
		}, "unassigned")
}

// GetFloorMetrics groups consumption by floor (one group per
// floor, named after its unit when known).
func (a *Analytics) GetFloorMetrics(
	ctx context.Context, f Filter,
) (GroupMetrics, error) {
	return a.groupedConsumption(ctx, f,
		func(u UnitConsumption) string { return u.Name }, "")
}

// unitIndex maps floor to its first unit row.
func (a *Analytics) unitIndex(
	ctx context.Context,
) (map[int]Unit, error) {
	units, err := a.db.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	byFloor := make(map[int]Unit, len(units))
	for _, u := range units {
		if _, ok := byFloor[u.Floor]; !ok {
			byFloor[u.Floor] = u
		}
	}
	return byFloor, nil
}
