package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// HourlySummary is one rollup row per (date, floor, hour). A NULL
// Floor marks the all-floors aggregate for that date/hour.
type HourlySummary struct {
	Date        string
	Floor       *int
	Hour        int
	AvgCurrent  float64
	TotalEnergy float64
	MaxCurrent  float64
	MaxEnergy   float64
	RecordCount int
}

// DailySummary is one rollup row per (date, floor).
type DailySummary struct {
	Date                string
	Floor               *int
	TotalRecords        int
	AvgCurrent          float64
	TotalEnergy         float64
	MinuteCount         int
	AvgCurrentPerMinute float64
	HourCount           int
	AvgCurrentPerHour   float64
}

// summaryFloorPred matches a summary row's floor key: all-floors
// selects the NULL-floor aggregate rows, never a union of the
// per-floor ones.
func summaryFloorPred(f FloorFilter) (string, []any) {
	if n, ok := f.Value(); ok {
		return "floor = ?", []any{n}
	}
	return "floor IS NULL", nil
}

// GetDailySummary returns the daily rollup row for (date, floor),
// or nil when no row exists (callers fall back to raw
// aggregation).
func (db *DB) GetDailySummary(
	ctx context.Context, date string, floor FloorFilter,
) (*DailySummary, error) {
	pred, floorArgs := summaryFloorPred(floor)
	args := append([]any{date}, floorArgs...)

	var s DailySummary
	err := db.reader.QueryRowContext(ctx, `
		SELECT date, floor, total_records, avg_current,
		       total_energy, minute_count, avg_current_per_minute,
		       hour_count, avg_current_per_hour
		FROM daily_summary
		WHERE date = ? AND `+pred, args...).Scan(
		&s.Date, &s.Floor, &s.TotalRecords, &s.AvgCurrent,
		&s.TotalEnergy, &s.MinuteCount, &s.AvgCurrentPerMinute,
		&s.HourCount, &s.AvgCurrentPerHour,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying daily summary: %w", err)
	}
	return &s, nil
}

// GetHourlySummaries returns the hourly rollup rows for
// (date, floor), hour-ascending. An empty slice means the rollup
// is unpopulated for that key.
func (db *DB) GetHourlySummaries(
	ctx context.Context, date string, floor FloorFilter,
) ([]HourlySummary, error) {
	pred, floorArgs := summaryFloorPred(floor)
	args := append([]any{date}, floorArgs...)

	rows, err := db.reader.QueryContext(ctx, `
		SELECT date, floor, hour, avg_current, total_energy,
		       max_current, max_energy, record_count
		FROM hourly_summary
		WHERE date = ? AND `+pred+`
		ORDER BY hour ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying hourly summaries: %w", err)
	}
	defer rows.Close()

	var out []HourlySummary
	for rows.Next() {
		var s HourlySummary
		if err := rows.Scan(
			&s.Date, &s.Floor, &s.Hour, &s.AvgCurrent,
			&s.TotalEnergy, &s.MaxCurrent, &s.MaxEnergy,
			&s.RecordCount,
		); err != nil {
			return nil, fmt.Errorf("scanning hourly summary: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hourly summaries: %w", err)
	}
	return out, nil
}

// HourlyEnergyByDate returns each date's rollup total_energy at
// one hour of day, from the hourly_summary table.
func (db *DB) HourlyEnergyByDate(
	ctx context.Context, dates []string, hour int, floor FloorFilter,
) (map[string]float64, error) {
	out := make(map[string]float64)
	err := queryChunked(dates, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		pred, floorArgs := summaryFloorPred(floor)
		args = append(args, hour)
		args = append(args, floorArgs...)

		rows, err := db.reader.QueryContext(ctx, `
			SELECT date, total_energy
			FROM hourly_summary
			WHERE date IN `+ph+` AND hour = ? AND `+pred,
			args...)
		if err != nil {
			return fmt.Errorf("querying summary energy by date: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var date string
			var energy float64
			if err := rows.Scan(&date, &energy); err != nil {
				return fmt.Errorf(
					"scanning summary energy by date: %w", err)
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

// TruncateHourlySummaries deletes every hourly rollup row. The
// delete commits on its own so a failed rebuild leaves the table
// empty rather than partially stale.
func (db *DB) TruncateHourlySummaries(ctx context.Context) error {
	if err := db.Exec(`DELETE FROM hourly_summary`); err != nil {
		return fmt.Errorf("truncating hourly_summary: %w", err)
	}
	return nil
}

// TruncateDailySummaries deletes every daily rollup row.
func (db *DB) TruncateDailySummaries(ctx context.Context) error {
	if err := db.Exec(`DELETE FROM daily_summary`); err != nil {
		return fmt.Errorf("truncating daily_summary: %w", err)
	}
	return nil
}

// InsertHourlySummaries writes rollup rows in one transaction.
func (db *DB) InsertHourlySummaries(
	ctx context.Context, rows []HourlySummary,
) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO hourly_summary
				(date, floor, hour, avg_current, total_energy,
				 max_current, max_energy, record_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing hourly insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range rows {
			if _, err := stmt.ExecContext(ctx,
				s.Date, s.Floor, s.Hour, s.AvgCurrent,
				s.TotalEnergy, s.MaxCurrent, s.MaxEnergy,
				s.RecordCount,
			); err != nil {
				return fmt.Errorf("inserting hourly summary: %w", err)
			}
		}
		return nil
	})
}

// InsertDailySummaries writes rollup rows in one transaction.
func (db *DB) InsertDailySummaries(
	ctx context.Context, rows []DailySummary,
) error {
	return db.Update(func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO daily_summary
				(date, floor, total_records, avg_current,
				 total_energy, minute_count, avg_current_per_minute,
				 hour_count, avg_current_per_hour)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing daily insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range rows {
			if _, err := stmt.ExecContext(ctx,
				s.Date, s.Floor, s.TotalRecords, s.AvgCurrent,
				s.TotalEnergy, s.MinuteCount, s.AvgCurrentPerMinute,
				s.HourCount, s.AvgCurrentPerHour,
			); err != nil {
				return fmt.Errorf("inserting daily summary: %w", err)
			}
		}
		return nil
	})
}

// DumpHourlySummaries returns the whole hourly_summary table in a
// deterministic order, for rebuild-idempotence checks.
func (db *DB) DumpHourlySummaries(
	ctx context.Context,
) ([]HourlySummary, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT date, floor, hour, avg_current, total_energy,
		       max_current, max_energy, record_count
		FROM hourly_summary
		ORDER BY date, floor IS NULL, floor, hour`)
	if err != nil {
		return nil, fmt.Errorf("dumping hourly summaries: %w", err)
	}
	defer rows.Close()

	var out []HourlySummary
	for rows.Next() {
		var s HourlySummary
		if err := rows.Scan(
			&s.Date, &s.Floor, &s.Hour, &s.AvgCurrent,
			&s.TotalEnergy, &s.MaxCurrent, &s.MaxEnergy,
			&s.RecordCount,
		); err != nil {
			return nil, fmt.Errorf("scanning hourly dump: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hourly dump: %w", err)
	}
	return out, nil
}

// DumpDailySummaries returns the whole daily_summary table in a
// deterministic order.
func (db *DB) DumpDailySummaries(
	ctx context.Context,
) ([]DailySummary, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT date, floor, total_records, avg_current,
		       total_energy, minute_count, avg_current_per_minute,
		       hour_count, avg_current_per_hour
		FROM daily_summary
		ORDER BY date, floor IS NULL, floor`)
	if err != nil {
		return nil, fmt.Errorf("dumping daily summaries: %w", err)
	}
	defer rows.Close()

	var out []DailySummary
	for rows.Next() {
		var s DailySummary
		if err := rows.Scan(
			&s.Date, &s.Floor, &s.TotalRecords, &s.AvgCurrent,
			&s.TotalEnergy, &s.MinuteCount, &s.AvgCurrentPerMinute,
			&s.HourCount, &s.AvgCurrentPerHour,
		); err != nil {
			return nil, fmt.Errorf("scanning daily dump: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily dump: %w", err)
	}
	return out, nil
}
