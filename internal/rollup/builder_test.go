package rollup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"wattview/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(path)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func fptr(v float64) *float64 { return &v }

func iptr(v int) *int { return &v }

// reading builds a raw row. floor <= 0 stores NULL.
func reading(
	date string, floor, hour, minute, second int,
	current, energy float64,
) db.Reading {
	r := db.Reading{
		Date:     date,
		Hour:     hour,
		Minute:   minute,
		Second:   second,
		CurrentA: fptr(current),
		EnergyWh: fptr(energy),
	}
	if floor > 0 {
		r.Floor = iptr(floor)
	}
	return r
}

func mustInsert(t *testing.T, database *db.DB, readings []db.Reading) {
	t.Helper()
	if err := database.InsertReadings(context.Background(), readings); err != nil {
		t.Fatalf("inserting readings: %v", err)
	}
}

func seedMixed(t *testing.T, database *db.DB) {
	t.Helper()
	mustInsert(t, database, []db.Reading{
		reading("2026-01-07", 1, 10, 0, 0, 5, 50),
		reading("2026-01-07", 1, 10, 1, 0, 7, 70),
		reading("2026-01-07", 1, 11, 0, 0, 4, 40),
		reading("2026-01-07", 2, 10, 0, 0, 3, 30),
		reading("2026-01-07", 0, 10, 0, 0, 2, 20), // untagged
		reading("2026-01-08", 2, 9, 30, 0, 6, 60),
	})
}

func newBuilder(t *testing.T, database *db.DB, opts ...Option) *Builder {
	t.Helper()
	return New(database, zaptest.NewLogger(t), opts...)
}

func TestRunIdempotent(t *testing.T) {
	database := openTestDB(t)
	seedMixed(t, database)
	ctx := context.Background()

	b := newBuilder(t, database)
	if err := b.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	hourly1, err := database.DumpHourlySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping hourly: %v", err)
	}
	daily1, err := database.DumpDailySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping daily: %v", err)
	}
	if len(hourly1) == 0 || len(daily1) == 0 {
		t.Fatal("expected summary rows after first run")
	}

	if err := b.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	hourly2, err := database.DumpHourlySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping hourly again: %v", err)
	}
	daily2, err := database.DumpDailySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping daily again: %v", err)
	}

	if diff := cmp.Diff(hourly1, hourly2); diff != "" {
		t.Errorf("hourly summaries changed on re-run (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(daily1, daily2); diff != "" {
		t.Errorf("daily summaries changed on re-run (-first +second):\n%s", diff)
	}
}

// The NULL-floor rows must come from an independent unfiltered
// scan. Untagged readings belong to the all-floors aggregate but
// to no per-floor row, so summing the per-floor rows would lose
// them.
func TestAllFloorsRowIsIndependentScan(t *testing.T) {
	database := openTestDB(t)
	seedMixed(t, database)
	ctx := context.Background()

	if err := newBuilder(t, database).BuildHourly(ctx); err != nil {
		t.Fatalf("building hourly: %v", err)
	}

	rows, err := database.DumpHourlySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping hourly: %v", err)
	}

	var all, perFloorSum float64
	for _, r := range rows {
		if r.Date != "2026-01-07" || r.Hour != 10 {
			continue
		}
		if r.Floor == nil {
			all = r.TotalEnergy
		} else {
			perFloorSum += r.TotalEnergy
		}
	}

	// floors 1+2 at hour 10: 50+70+30; plus the untagged 20.
	if all != 170 {
		t.Errorf("all-floors hour 10 energy = %v, want 170", all)
	}
	if perFloorSum != 150 {
		t.Errorf("per-floor hour 10 energy sum = %v, want 150", perFloorSum)
	}
}

// A fresh database answers summary queries from raw readings; a
// rolled-up one answers from daily_summary. Both paths share the
// aggregation formulas, so the responses must agree.
func TestSummaryMatchesRawFallback(t *testing.T) {
	database := openTestDB(t)
	seedMixed(t, database)
	ctx := context.Background()
	analytics := db.NewAnalytics(database, 0.15)
	filter := db.Filter{Date: "2026-01-07"}

	before, err := analytics.GetSummary(ctx, filter)
	if err != nil {
		t.Fatalf("summary before rollup: %v", err)
	}

	if err := newBuilder(t, database).Run(ctx); err != nil {
		t.Fatalf("running builder: %v", err)
	}

	after, err := analytics.GetSummary(ctx, filter)
	if err != nil {
		t.Fatalf("summary after rollup: %v", err)
	}

	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("summary diverged between raw and rollup paths (-raw +rollup):\n%s", diff)
	}
}

func TestBuildSkipsMalformedReadings(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	mustInsert(t, database, []db.Reading{
		reading("2026-01-07", 1, 10, 0, 0, 5, 50),
		{Date: "2026-01-07", Floor: iptr(1), Hour: 10, Minute: 1}, // NULL measures
	})

	var last Progress
	b := newBuilder(t, database, WithProgress(func(p Progress) { last = p }))
	if err := b.BuildHourly(ctx); err != nil {
		t.Fatalf("building hourly: %v", err)
	}

	rows, err := database.DumpHourlySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping hourly: %v", err)
	}
	for _, r := range rows {
		if r.RecordCount != 1 {
			t.Errorf("hour %d record count = %d, want 1 (malformed row counted)",
				r.Hour, r.RecordCount)
		}
	}

	// Both the floor-1 pass and the all-floors pass see the row.
	if last.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", last.Skipped)
	}
}

func TestProgressReporting(t *testing.T) {
	database := openTestDB(t)
	seedMixed(t, database)
	ctx := context.Background()

	var reports []Progress
	b := newBuilder(t, database,
		WithProgressEvery(1),
		WithProgress(func(p Progress) { reports = append(reports, p) }))
	if err := b.BuildHourly(ctx); err != nil {
		t.Fatalf("building hourly: %v", err)
	}

	if len(reports) == 0 {
		t.Fatal("expected progress reports")
	}
	final := reports[len(reports)-1]
	if final.Phase != PhaseHourly {
		t.Errorf("final phase = %q, want %q", final.Phase, PhaseHourly)
	}
	// 2026-01-07 has floors 1,2 plus all-floors; 2026-01-08 has
	// floor 2 plus all-floors.
	if final.Combos != 5 {
		t.Errorf("combos = %d, want 5", final.Combos)
	}
	if final.DatesTotal != 2 || final.DatesDone != 2 {
		t.Errorf("dates = %d/%d, want 2/2", final.DatesDone, final.DatesTotal)
	}

	rows, err := database.DumpHourlySummaries(ctx)
	if err != nil {
		t.Fatalf("dumping hourly: %v", err)
	}
	if final.RowsWritten != len(rows) {
		t.Errorf("rows written = %d, want %d", final.RowsWritten, len(rows))
	}
}
