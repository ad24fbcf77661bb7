// Package rollup materializes the hourly and daily summary tables
// from the raw readings store. The build is destructive: each run
// truncates the target table, then rewrites it in one
// transaction, so a failed run leaves the table empty (readers
// fall back to raw aggregation) and never partially stale.
package rollup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"wattview/internal/aggregate"
	"wattview/internal/db"
)

// defaultProgressEvery is how many (date, floor) combinations are
// processed between progress reports.
const defaultProgressEvery = 50

// Phase describes the current build phase.
type Phase string

const (
	PhaseHourly Phase = "hourly"
	PhaseDaily  Phase = "daily"
)

// Progress reports build progress to listeners. Reporting is
// observability only; it has no effect on the produced tables.
type Progress struct {
	Phase       Phase `json:"phase"`
	DatesTotal  int   `json:"dates_total"`
	DatesDone   int   `json:"dates_done"`
	Combos      int   `json:"combos"`
	RowsWritten int   `json:"rows_written"`
	Skipped     int   `json:"skipped"`
}

// ProgressFunc is called with progress updates during a build.
type ProgressFunc func(Progress)

// Builder rebuilds the summary tables. It is a single-threaded
// batch job; safe concurrent use reduces to the truncate-first
// contract above.
type Builder struct {
	db     *db.DB
	logger *zap.Logger

	progressEvery int
	onProgress    ProgressFunc
}

// Option configures a Builder.
type Option func(*Builder)

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.onProgress = fn }
}

// WithProgressEvery overrides the reporting interval, in
// processed (date, floor) combinations.
func WithProgressEvery(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.progressEvery = n
		}
	}
}

// New creates a Builder.
func New(database *db.DB, logger *zap.Logger, opts ...Option) *Builder {
	b := &Builder{
		db:            database,
		logger:        logger,
		progressEvery: defaultProgressEvery,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run rebuilds both summary tables: hourly first, then daily.
func (b *Builder) Run(ctx context.Context) error {
	if err := b.BuildHourly(ctx); err != nil {
		return fmt.Errorf("building hourly summaries: %w", err)
	}
	if err := b.BuildDaily(ctx); err != nil {
		return fmt.Errorf("building daily summaries: %w", err)
	}
	return nil
}

// skipLogger returns an onSkip callback that records and logs a
// malformed reading without aborting the scan.
func (b *Builder) skipLogger(skipped *int) func(db.Reading) {
	return func(r db.Reading) {
		*skipped++
		b.logger.Warn("skipping malformed reading",
			zap.String("date", r.Date),
			zap.Int("hour", r.Hour),
			zap.Int("minute", r.Minute),
			zap.Int("second", r.Second))
	}
}

// BuildHourly rebuilds hourly_summary: for every date (ascending)
// and every observed floor — plus the synthetic all-floors pass,
// which re-scans the unfiltered readings rather than summing the
// per-floor rows — one row per observed hour.
func (b *Builder) BuildHourly(ctx context.Context) error {
	dates, err := b.db.ListDates(ctx)
	if err != nil {
		return err
	}

	if err := b.db.TruncateHourlySummaries(ctx); err != nil {
		return err
	}

	p := Progress{Phase: PhaseHourly, DatesTotal: len(dates)}
	var rows []db.HourlySummary

	for _, date := range dates {
		floors, err := b.db.ListFloors(ctx, date)
		if err != nil {
			return err
		}

		// Per-floor passes, then the all-floors pass.
		filters := make([]db.FloorFilter, 0, len(floors)+1)
		for _, f := range floors {
			filters = append(filters, db.OneFloor(f))
		}
		filters = append(filters, db.AllFloors())

		for _, floor := range filters {
			samples, err := b.db.Samples(
				ctx, []string{date}, floor, b.skipLogger(&p.Skipped))
			if err != nil {
				return err
			}

			floorVal := floorColumn(floor)
			for _, h := range aggregate.HourlySeries(samples) {
				rows = append(rows, db.HourlySummary{
					Date:        date,
					Floor:       floorVal,
					Hour:        h.Hour,
					AvgCurrent:  h.AvgCurrent,
					TotalEnergy: h.TotalEnergy,
					MaxCurrent:  h.MaxCurrent,
					MaxEnergy:   h.MaxEnergy,
					RecordCount: h.RecordCount,
				})
			}
			b.step(&p, len(rows))
		}
		p.DatesDone++
	}

	if err := b.db.InsertHourlySummaries(ctx, rows); err != nil {
		return err
	}
	p.RowsWritten = len(rows)
	b.report(p)
	b.logger.Info("hourly rollup complete",
		zap.Int("dates", len(dates)),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", p.Skipped))
	return nil
}

// BuildDaily rebuilds daily_summary: one row per (date, floor)
// plus the all-floors row per date.
func (b *Builder) BuildDaily(ctx context.Context) error {
	dates, err := b.db.ListDates(ctx)
	if err != nil {
		return err
	}

	if err := b.db.TruncateDailySummaries(ctx); err != nil {
		return err
	}

	p := Progress{Phase: PhaseDaily, DatesTotal: len(dates)}
	var rows []db.DailySummary

	for _, date := range dates {
		floors, err := b.db.ListFloors(ctx, date)
		if err != nil {
			return err
		}

		filters := make([]db.FloorFilter, 0, len(floors)+1)
		for _, f := range floors {
			filters = append(filters, db.OneFloor(f))
		}
		filters = append(filters, db.AllFloors())

		for _, floor := range filters {
			samples, err := b.db.Samples(
				ctx, []string{date}, floor, b.skipLogger(&p.Skipped))
			if err != nil {
				return err
			}
			if len(samples) == 0 && !floor.All() {
				continue
			}

			d := aggregate.DailyRollup(samples)
			rows = append(rows, db.DailySummary{
				Date:                date,
				Floor:               floorColumn(floor),
				TotalRecords:        d.TotalRecords,
				AvgCurrent:          d.AvgCurrent,
				TotalEnergy:         d.TotalEnergy,
				MinuteCount:         d.MinuteCount,
				AvgCurrentPerMinute: d.AvgCurrentPerMinute,
				HourCount:           d.HourCount,
				AvgCurrentPerHour:   d.AvgCurrentPerHour,
			})
			b.step(&p, len(rows))
		}
		p.DatesDone++
	}

	if err := b.db.InsertDailySummaries(ctx, rows); err != nil {
		return err
	}
	p.RowsWritten = len(rows)
	b.report(p)
	b.logger.Info("daily rollup complete",
		zap.Int("dates", len(dates)),
		zap.Int("rows", len(rows)),
		zap.Int("skipped", p.Skipped))
	return nil
}

// floorColumn maps a floor filter to the summary table's floor
// column: NULL for the all-floors aggregate.
func floorColumn(f db.FloorFilter) *int {
	if n, ok := f.Value(); ok {
		return &n
	}
	return nil
}

// step counts one processed (date, floor) combination and reports
// on the configured interval.
func (b *Builder) step(p *Progress, rowsSoFar int) {
	p.Combos++
	if p.Combos%b.progressEvery == 0 {
		snapshot := *p
		snapshot.RowsWritten = rowsSoFar
		b.report(snapshot)
	}
}

func (b *Builder) report(p Progress) {
	if b.onProgress != nil {
		b.onProgress(p)
	}
}
