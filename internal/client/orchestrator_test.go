package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"wattview/internal/db"
)

// stubService counts calls per facet and can block or fail
// specific summary dates.
type stubService struct {
	mu         sync.Mutex
	dates      []string
	datesCalls int
	calls      map[string]int
	failDates  map[string]error
	gates      map[string]chan struct{}
}

func newStubService(dates ...string) *stubService {
	return &stubService{
		dates:     dates,
		calls:     make(map[string]int),
		failDates: make(map[string]error),
		gates:     make(map[string]chan struct{}),
	}
}

func (s *stubService) count(name string) {
	s.mu.Lock()
	s.calls[name]++
	s.mu.Unlock()
}

func (s *stubService) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubService) Dates(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datesCalls++
	return s.dates, nil
}

func (s *stubService) Summary(
	_ context.Context, f db.Filter,
) (db.Summary, error) {
	s.count("summary")
	s.mu.Lock()
	gate := s.gates[f.Date]
	err := s.failDates[f.Date]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return db.Summary{}, err
	}
	return db.Summary{Date: f.Date}, nil
}

func (s *stubService) Hourly(
	context.Context, db.Filter,
) (db.HourlyData, error) {
	s.count("hourly")
	return db.HourlyData{}, nil
}

func (s *stubService) WeeklyPeaks(
	context.Context, db.Filter,
) (db.WeeklyPeaks, error) {
	s.count("weekly-peaks")
	return db.WeeklyPeaks{}, nil
}

func (s *stubService) Floors(
	context.Context, db.Filter,
) (db.FloorAnalytics, error) {
	s.count("floors")
	return db.FloorAnalytics{}, nil
}

func (s *stubService) TopUnits(
	context.Context, db.Filter,
) (db.TopUnits, error) {
	s.count("top-units")
	return db.TopUnits{}, nil
}

func (s *stubService) EquipmentTypes(
	context.Context, db.Filter,
) (db.GroupMetrics, error) {
	s.count("equipment-types")
	return db.GroupMetrics{}, nil
}

func (s *stubService) Buildings(
	context.Context, db.Filter,
) (db.GroupMetrics, error) {
	s.count("buildings")
	return db.GroupMetrics{}, nil
}

func (s *stubService) Branches(
	context.Context, db.Filter,
) (db.GroupMetrics, error) {
	s.count("branches")
	return db.GroupMetrics{}, nil
}

func newTestOrchestrator(t *testing.T, svc Service) *Orchestrator {
	t.Helper()
	return NewOrchestrator(
		svc, NewCache(32, time.Minute), zaptest.NewLogger(t))
}

func TestDateLocking(t *testing.T) {
	svc := newStubService("2026-01-05", "2026-01-07")
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	v, err := o.Get(ctx, FacetSummary, db.Filter{})
	if err != nil {
		t.Fatalf("get summary: %v", err)
	}
	if got := v.(db.Summary).Date; got != "2026-01-05" {
		t.Errorf("resolved date = %q, want earliest", got)
	}
	if svc.datesCalls != 1 {
		t.Errorf("dates calls = %d, want 1", svc.datesCalls)
	}

	// The lock holds: no second dates lookup, same date.
	if _, err := o.Get(ctx, FacetSummary, db.Filter{}); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if svc.datesCalls != 1 {
		t.Errorf("dates calls after relock = %d, want 1", svc.datesCalls)
	}

	// An explicit date re-locks.
	v, err = o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-07"})
	if err != nil {
		t.Fatalf("explicit date get: %v", err)
	}
	if got := v.(db.Summary).Date; got != "2026-01-07" {
		t.Errorf("explicit date = %q", got)
	}
	if d, _ := o.ResolveDate(ctx, ""); d != "2026-01-07" {
		t.Errorf("lock did not move to explicit date, got %q", d)
	}
}

// Churning the date A -> B -> A must serve A's cached response
// synchronously on return, with no third fetch.
func TestDateChurnServedFromCache(t *testing.T) {
	svc := newStubService("2026-01-05")
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	for _, date := range []string{"2026-01-05", "2026-01-07", "2026-01-05"} {
		if _, err := o.Get(ctx, FacetSummary, db.Filter{Date: date}); err != nil {
			t.Fatalf("get %s: %v", date, err)
		}
	}
	if got := svc.callCount("summary"); got != 2 {
		t.Errorf("summary fetches = %d, want 2", got)
	}
	snap := o.Snapshot(FacetSummary)
	if snap.State != StateReady {
		t.Errorf("state = %v, want ready", snap.State)
	}
	if got := snap.Value.(db.Summary).Date; got != "2026-01-05" {
		t.Errorf("panel date = %q, want 2026-01-05", got)
	}
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	svc := newStubService("2026-01-05")
	gate := make(chan struct{})
	svc.gates["2026-01-05"] = gate
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-05"})
		}()
	}

	// Wait until at least one fetch is parked on the gate, then
	// release everyone.
	deadline := time.After(5 * time.Second)
	for svc.callCount("summary") == 0 {
		select {
		case <-deadline:
			t.Fatal("no fetch started")
		case <-time.After(time.Millisecond):
		}
	}
	// Let the remaining goroutines park on the shared flight.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if got := svc.callCount("summary"); got != 1 {
		t.Errorf("summary fetches = %d, want 1 (coalesced)", got)
	}
}

func TestStalePreferredOnError(t *testing.T) {
	svc := newStubService("2026-01-05")
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	if _, err := o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-05"}); err != nil {
		t.Fatalf("warm-up get: %v", err)
	}

	svc.failDates["2026-01-07"] = errors.New("store unavailable")
	stale, err := o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-07"})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if stale == nil {
		t.Fatal("expected stale value alongside error")
	}
	if got := stale.(db.Summary).Date; got != "2026-01-05" {
		t.Errorf("stale date = %q, want 2026-01-05", got)
	}

	snap := o.Snapshot(FacetSummary)
	if snap.State != StateReady {
		t.Errorf("state = %v, want ready with stale value", snap.State)
	}
	if snap.Err == nil {
		t.Error("snapshot should carry the fetch error")
	}
	if got := snap.Value.(db.Summary).Date; got != "2026-01-05" {
		t.Errorf("panel blanked: date = %q", got)
	}
}

func TestErrorWithoutPriorValue(t *testing.T) {
	svc := newStubService("2026-01-05")
	svc.failDates["2026-01-05"] = errors.New("store unavailable")
	o := newTestOrchestrator(t, svc)

	if _, err := o.Get(context.Background(), FacetSummary, db.Filter{}); err == nil {
		t.Fatal("expected fetch error")
	}
	snap := o.Snapshot(FacetSummary)
	if snap.State != StateEmpty {
		t.Errorf("state = %v, want empty", snap.State)
	}
	if snap.Err == nil {
		t.Error("snapshot should carry the error")
	}
}

// A fetch that completes after the facet moved to a newer
// fingerprint must not overwrite the newer panel.
func TestSupersededResponseIgnored(t *testing.T) {
	svc := newStubService("2026-01-05")
	gate := make(chan struct{})
	svc.gates["2026-01-05"] = gate
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-05"})
	}()

	deadline := time.After(5 * time.Second)
	for svc.callCount("summary") == 0 {
		select {
		case <-deadline:
			t.Fatal("no fetch started")
		case <-time.After(time.Millisecond):
		}
	}

	// The newer fingerprint completes while the old fetch hangs.
	if _, err := o.Get(ctx, FacetSummary, db.Filter{Date: "2026-01-07"}); err != nil {
		t.Fatalf("newer get: %v", err)
	}

	close(gate)
	<-done

	snap := o.Snapshot(FacetSummary)
	if got := snap.Value.(db.Summary).Date; got != "2026-01-07" {
		t.Errorf("panel date = %q, want 2026-01-07 (old response ignored)", got)
	}
}

func TestRefreshFetchesAllFacetsInParallel(t *testing.T) {
	svc := newStubService("2026-01-05")
	o := newTestOrchestrator(t, svc)

	if err := o.Refresh(context.Background(), db.Filter{}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for _, facet := range Facets() {
		if got := svc.callCount(string(facet)); got != 1 {
			t.Errorf("%s fetches = %d, want 1", facet, got)
		}
		if snap := o.Snapshot(facet); snap.State != StateReady {
			t.Errorf("%s state = %v, want ready", facet, snap.State)
		}
	}
}

// Floor-scoped facets do not depend on the date, so a date change
// must not refetch them.
func TestDateChangeSkipsFloorScopedFacets(t *testing.T) {
	svc := newStubService("2026-01-05")
	o := newTestOrchestrator(t, svc)
	ctx := context.Background()

	if err := o.Refresh(ctx, db.Filter{Date: "2026-01-05"}); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if err := o.Refresh(ctx, db.Filter{Date: "2026-01-07"}); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	if got := svc.callCount("summary"); got != 2 {
		t.Errorf("summary fetches = %d, want 2", got)
	}
	if got := svc.callCount("weekly-peaks"); got != 1 {
		t.Errorf("weekly-peaks fetches = %d, want 1 (date-independent)", got)
	}
	if got := svc.callCount("floors"); got != 1 {
		t.Errorf("floors fetches = %d, want 1 (date-independent)", got)
	}
}

func TestUnknownFacet(t *testing.T) {
	o := newTestOrchestrator(t, newStubService())
	if _, err := o.Get(context.Background(), Facet("bogus"), db.Filter{}); err == nil {
		t.Fatal("expected unknown facet error")
	}
}
