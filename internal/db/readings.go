package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"wattview/internal/aggregate"
)

// maxSQLVars is the maximum bind variables per IN clause to stay
// within SQLite's default SQLITE_MAX_VARIABLE_NUMBER (999).
const maxSQLVars = 500

// inPlaceholders returns a "(?,?,...)" string and []any args for
// a slice of date strings.
func inPlaceholders(dates []string) (string, []any) {
	ph := make([]string, len(dates))
	args := make([]any, len(dates))
	for i, d := range dates {
		ph[i] = "?"
		args[i] = d
	}
	return "(" + strings.Join(ph, ",") + ")", args
}

// queryChunked executes a callback for each chunk of dates,
// splitting at maxSQLVars to avoid SQLite bind-variable limits.
func queryChunked(dates []string, fn func(chunk []string) error) error {
	for i := 0; i < len(dates); i += maxSQLVars {
		end := min(i+maxSQLVars, len(dates))
		if err := fn(dates[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// Reading is one raw per-second measurement. The measured values
// are nullable: a row missing its current or energy fails
// required-field extraction and is skipped by every aggregation
// path.
type Reading struct {
	Date     string
	Floor    *int
	Hour     int
	Minute   int
	Second   int
	VoltageV *float64
	CurrentA *float64
	PowerW   *float64
	EnergyWh *float64
}

// InsertReadings appends raw readings. The core never calls this
// in production; it exists for fixtures and tests (ingestion is an
// external collaborator).
func (db *DB) InsertReadings(ctx context.Context, readings []Reading) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO readings
				(date, floor, hour, minute, second,
				 voltage_v, current_a, power_w, energy_wh)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing reading insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range readings {
			if _, err := stmt.ExecContext(ctx,
				r.Date, r.Floor, r.Hour, r.Minute, r.Second,
				r.VoltageV, r.CurrentA, r.PowerW, r.EnergyWh,
			); err != nil {
				return fmt.Errorf("inserting reading: %w", err)
			}
		}
		return nil
	})
}

// ListDates returns the distinct reading dates, ascending.
func (db *DB) ListDates(ctx context.Context) ([]string, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT DISTINCT date FROM readings ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dates: %w", err)
	}
	return dates, nil
}

// ListFloors returns the distinct non-NULL floors observed on a
// date, ascending. Floor 0 rows are invalid and excluded.
func (db *DB) ListFloors(ctx context.Context, date string) ([]int, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT DISTINCT floor FROM readings
		WHERE date = ? AND floor IS NOT NULL AND floor >= 1
		ORDER BY floor ASC`, date)
	if err != nil {
		return nil, fmt.Errorf("querying floors: %w", err)
	}
	defer rows.Close()

	var floors []int
	for rows.Next() {
		var f int
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scanning floor: %w", err)
		}
		floors = append(floors, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating floors: %w", err)
	}
	return floors, nil
}

// floorPred returns an extra WHERE predicate for reading scans.
// All-floors means no predicate: the unfiltered set, including
// rows without a floor tag.
func floorPred(f FloorFilter) (string, []any) {
	if n, ok := f.Value(); ok {
		return " AND floor = ?", []any{n}
	}
	return "", nil
}

// Samples scans the readings for the given dates and floor filter
// and converts them to aggregation samples. Rows with a NULL
// current or energy are passed to onSkip (when non-nil) and
// excluded; they never abort the scan.
func (db *DB) Samples(
	ctx context.Context, dates []string, floor FloorFilter,
	onSkip func(Reading),
) ([]aggregate.Sample, error) {
	var samples []aggregate.Sample
	err := queryChunked(dates, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		pred, floorArgs := floorPred(floor)
		args = append(args, floorArgs...)

		rows, err := db.reader.QueryContext(ctx, `
			SELECT date, floor, hour, minute, second,
			       current_a, energy_wh
			FROM readings
			WHERE date IN `+ph+pred, args...)
		if err != nil {
			return fmt.Errorf("querying readings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r Reading
			if err := rows.Scan(
				&r.Date, &r.Floor, &r.Hour, &r.Minute, &r.Second,
				&r.CurrentA, &r.EnergyWh,
			); err != nil {
				return fmt.Errorf("scanning reading: %w", err)
			}
			if r.CurrentA == nil || r.EnergyWh == nil {
				if onSkip != nil {
					onSkip(r)
				}
				continue
			}
			samples = append(samples, aggregate.Sample{
				Floor:   r.Floor,
				Hour:    r.Hour,
				Minute:  r.Minute,
				Second:  r.Second,
				Current: *r.CurrentA,
				Energy:  *r.EnergyWh,
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// DatedSample pairs a sample with its date and concrete floor,
// used by the per-floor analytics shaping.
type DatedSample struct {
	Date   string
	Floor  int
	Sample aggregate.Sample
}

// FloorDatedSamples scans all valid per-floor readings (floor >= 1)
// matching the floor filter, across every date. NULL-measure rows
// are silently excluded, as are untagged and floor-0 rows.
func (db *DB) FloorDatedSamples(
	ctx context.Context, floor FloorFilter,
) ([]DatedSample, error) {
	pred, args := floorPred(floor)
	rows, err := db.reader.QueryContext(ctx, `
		SELECT date, floor, hour, minute, second,
		       current_a, energy_wh
		FROM readings
		WHERE floor IS NOT NULL AND floor >= 1
		  AND current_a IS NOT NULL AND energy_wh IS NOT NULL`+pred,
		args...)
	if err != nil {
		return nil, fmt.Errorf("querying floor readings: %w", err)
	}
	defer rows.Close()

	var out []DatedSample
	for rows.Next() {
		var (
			ds              DatedSample
			current, energy float64
		)
		if err := rows.Scan(
			&ds.Date, &ds.Floor,
			&ds.Sample.Hour, &ds.Sample.Minute, &ds.Sample.Second,
			&current, &energy,
		); err != nil {
			return nil, fmt.Errorf("scanning floor reading: %w", err)
		}
		ds.Sample.Current = current
		ds.Sample.Energy = energy
		ds.Sample.Floor = &ds.Floor
		out = append(out, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating floor readings: %w", err)
	}
	return out, nil
}

// DistinctTimeCounts recomputes COUNT(DISTINCT minute) and
// COUNT(DISTINCT hour) for a date directly against the raw store.
// Both are floored at 1. GetSummary uses this to guard against a
// stale daily_summary row.
func (db *DB) DistinctTimeCounts(
	ctx context.Context, date string, floor FloorFilter,
) (minutes, hours int, err error) {
	pred, floorArgs := floorPred(floor)
	args := append([]any{date}, floorArgs...)

	err = db.reader.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT minute), COUNT(DISTINCT hour)
		FROM readings
		WHERE date = ?`+pred, args...).Scan(&minutes, &hours)
	if err != nil {
		return 0, 0, fmt.Errorf("counting distinct times: %w", err)
	}
	if minutes < 1 {
		minutes = 1
	}
	if hours < 1 {
		hours = 1
	}
	return minutes, hours, nil
}

// FloorTotal is the raw per-floor rollup used by the derived
// consumption metrics.
type FloorTotal struct {
	Floor       int
	TotalEnergy float64
	RecordCount int
}

// FloorTotals sums energy and counts records per floor over the
// given dates. Untagged and floor-0 rows are excluded. Results are
// floor-ascending.
func (db *DB) FloorTotals(
	ctx context.Context, dates []string, floor FloorFilter,
) ([]FloorTotal, error) {
	totals := make(map[int]*FloorTotal)
	err := queryChunked(dates, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		pred, floorArgs := floorPred(floor)
		args = append(args, floorArgs...)

		rows, err := db.reader.QueryContext(ctx, `
			SELECT floor, COALESCE(SUM(energy_wh), 0), COUNT(*)
			FROM readings
			WHERE date IN `+ph+`
			  AND floor IS NOT NULL AND floor >= 1
			  AND current_a IS NOT NULL AND energy_wh IS NOT NULL`+
			pred+`
			GROUP BY floor`, args...)
		if err != nil {
			return fmt.Errorf("querying floor totals: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var f FloorTotal
			if err := rows.Scan(
				&f.Floor, &f.TotalEnergy, &f.RecordCount,
			); err != nil {
				return fmt.Errorf("scanning floor total: %w", err)
			}
			if t, ok := totals[f.Floor]; ok {
				t.TotalEnergy += f.TotalEnergy
				t.RecordCount += f.RecordCount
			} else {
				cp := f
				totals[f.Floor] = &cp
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]FloorTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Floor < out[j].Floor
	})
	return out, nil
}

// EnergyByDateAtHour sums raw energy per date at one hour of day.
// Used to recover the peak date when the hourly rollups are
// unpopulated.
func (db *DB) EnergyByDateAtHour(
	ctx context.Context, dates []string, hour int, floor FloorFilter,
) (map[string]float64, error) {
	out := make(map[string]float64)
	err := queryChunked(dates, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		pred, floorArgs := floorPred(floor)
		args = append(args, hour)
		args = append(args, floorArgs...)

		rows, err := db.reader.QueryContext(ctx, `
			SELECT date, COALESCE(SUM(energy_wh), 0)
			FROM readings
			WHERE date IN `+ph+` AND hour = ?`+pred+`
			GROUP BY date`, args...)
		if err != nil {
			return fmt.Errorf("querying energy by date: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var date string
			var energy float64
			if err := rows.Scan(&date, &energy); err != nil {
				return fmt.Errorf("scanning energy by date: %w", err)
			}
			out[date] = energy
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
