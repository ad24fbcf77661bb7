package client

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"wattview/internal/db"
)

// Service is the analytics surface the orchestrator drives.
// *Client implements it; tests substitute stubs.
type Service interface {
	Dates(ctx context.Context) ([]string, error)
	Summary(ctx context.Context, f db.Filter) (db.Summary, error)
	Hourly(ctx context.Context, f db.Filter) (db.HourlyData, error)
	WeeklyPeaks(ctx context.Context, f db.Filter) (db.WeeklyPeaks, error)
	Floors(ctx context.Context, f db.Filter) (db.FloorAnalytics, error)
	TopUnits(ctx context.Context, f db.Filter) (db.TopUnits, error)
	EquipmentTypes(ctx context.Context, f db.Filter) (db.GroupMetrics, error)
	Buildings(ctx context.Context, f db.Filter) (db.GroupMetrics, error)
	Branches(ctx context.Context, f db.Filter) (db.GroupMetrics, error)
}

// Facet is one independently fetched dashboard panel.
type Facet string

const (
	FacetSummary        Facet = "summary"
	FacetHourly         Facet = "hourly"
	FacetWeeklyPeaks    Facet = "weekly-peaks"
	FacetFloors         Facet = "floors"
	FacetTopUnits       Facet = "top-units"
	FacetEquipmentTypes Facet = "equipment-types"
	FacetBuildings      Facet = "buildings"
	FacetBranches       Facet = "branches"
)

// Facets lists every facet in refresh order.
func Facets() []Facet {
	return []Facet{
		FacetSummary, FacetHourly, FacetWeeklyPeaks, FacetFloors,
		FacetTopUnits, FacetEquipmentTypes, FacetBuildings,
		FacetBranches,
	}
}

// fingerprintAll keys on every filter field a date-scoped facet
// depends on.
func fingerprintAll(f db.Filter) string {
	return f.Date + "|" + f.Floor.String() + "|" +
		string(db.ParseGranularity(string(f.Granularity))) + "|" +
		f.Weekday
}

// fingerprintFloor keys on the floor alone, for facets whose
// result spans all dates.
func fingerprintFloor(f db.Filter) string {
	return f.Floor.String()
}

func fingerprintLimited(f db.Filter) string {
	return fingerprintAll(f) + "|" + strconv.Itoa(f.Limit)
}

type facetSpec struct {
	fingerprint func(db.Filter) string
	fetch       func(context.Context, Service, db.Filter) (any, error)
}

var facetSpecs = map[Facet]facetSpec{
	FacetSummary: {fingerprintAll,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.Summary(ctx, f)
		}},
	FacetHourly: {fingerprintAll,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.Hourly(ctx, f)
		}},
	FacetWeeklyPeaks: {fingerprintFloor,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.WeeklyPeaks(ctx, f)
		}},
	FacetFloors: {fingerprintFloor,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.Floors(ctx, f)
		}},
	FacetTopUnits: {fingerprintLimited,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.TopUnits(ctx, f)
		}},
	FacetEquipmentTypes: {fingerprintAll,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.EquipmentTypes(ctx, f)
		}},
	FacetBuildings: {fingerprintAll,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.Buildings(ctx, f)
		}},
	FacetBranches: {fingerprintAll,
		func(ctx context.Context, s Service, f db.Filter) (any, error) {
			return s.Branches(ctx, f)
		}},
}

// State is a panel's lifecycle position.
type State int

const (
	StateEmpty State = iota
	StateFetching
	StateReady
)

// Snapshot is what a panel currently shows. During a refetch the
// previous value stays visible, and a failed fetch keeps the last
// good value rather than blanking the panel.
type Snapshot struct {
	State       State
	Fingerprint string
	Value       any
	Err         error
}

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattview_client_cache_hits_total",
			Help: "Orchestrator cache hits by facet.",
		},
		[]string{"facet"},
	)
	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattview_client_cache_misses_total",
			Help: "Orchestrator cache misses by facet.",
		},
		[]string{"facet"},
	)
	fetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wattview_client_fetch_errors_total",
			Help: "Orchestrator fetch failures by facet.",
		},
		[]string{"facet"},
	)
)

// Orchestrator memoizes analytics responses by filter fingerprint
// and keeps per-facet panel state stable across refreshes.
type Orchestrator struct {
	svc    Service
	cache  *Cache
	logger *zap.Logger
	group  singleflight.Group

	mu         sync.Mutex
	panels     map[Facet]*Snapshot
	wanted     map[Facet]string
	activeDate string
	dateLocked bool
}

// NewOrchestrator creates an orchestrator over svc with a bounded
// response cache.
func NewOrchestrator(
	svc Service, cache *Cache, logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		svc:    svc,
		cache:  cache,
		logger: logger,
		panels: make(map[Facet]*Snapshot),
		wanted: make(map[Facet]string),
	}
}

// ResolveDate pins the active date. An explicit valid date always
// wins and re-locks; otherwise the previously locked date holds,
// and only a first-ever resolution consults the dates listing.
// The lock keeps the dashboard's date context from drifting while
// slower panels are still loading.
func (o *Orchestrator) ResolveDate(
	ctx context.Context, explicit string,
) (string, error) {
	o.mu.Lock()
	if explicit != "" {
		o.activeDate = explicit
		o.dateLocked = true
		o.mu.Unlock()
		return explicit, nil
	}
	if o.dateLocked {
		d := o.activeDate
		o.mu.Unlock()
		return d, nil
	}
	o.mu.Unlock()

	dates, err := o.svc.Dates(ctx)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.dateLocked {
		if len(dates) > 0 {
			o.activeDate = dates[0]
		}
		o.dateLocked = true
	}
	return o.activeDate, nil
}

// Get returns the facet's data for the filter, serving from cache
// when the fingerprint matches. Identical concurrent misses share
// one fetch. A response that arrives after the facet has moved to
// a newer fingerprint is cached but not rendered.
func (o *Orchestrator) Get(
	ctx context.Context, facet Facet, f db.Filter,
) (any, error) {
	spec, ok := facetSpecs[facet]
	if !ok {
		return nil, errUnknownFacet(facet)
	}

	date, err := o.ResolveDate(ctx, f.Date)
	if err != nil {
		return nil, err
	}
	f.Date = date

	fp := spec.fingerprint(f)
	key := string(facet) + ":" + fp

	o.mu.Lock()
	o.wanted[facet] = fp
	o.mu.Unlock()

	if v, ok := o.cache.Get(key); ok {
		cacheHits.WithLabelValues(string(facet)).Inc()
		o.setPanel(facet, Snapshot{
			State: StateReady, Fingerprint: fp, Value: v,
		})
		return v, nil
	}
	cacheMisses.WithLabelValues(string(facet)).Inc()
	o.markFetching(facet, fp)

	v, err, _ := o.group.Do(key, func() (any, error) {
		return spec.fetch(ctx, o.svc, f)
	})
	if err != nil {
		fetchErrors.WithLabelValues(string(facet)).Inc()
		o.logger.Warn("facet fetch failed",
			zap.String("facet", string(facet)), zap.Error(err))
		stale := o.keepStale(facet, err)
		return stale, err
	}

	o.cache.Put(key, v)

	o.mu.Lock()
	superseded := o.wanted[facet] != fp
	o.mu.Unlock()
	if !superseded {
		o.setPanel(facet, Snapshot{
			State: StateReady, Fingerprint: fp, Value: v,
		})
	}
	return v, nil
}

// Refresh resolves the active date once, then fetches every facet
// in parallel. A slow or failing facet never delays the others;
// the first error is reported after all fetches settle.
func (o *Orchestrator) Refresh(ctx context.Context, f db.Filter) error {
	date, err := o.ResolveDate(ctx, f.Date)
	if err != nil {
		return err
	}
	f.Date = date

	var g errgroup.Group
	for _, facet := range Facets() {
		g.Go(func() error {
			_, err := o.Get(ctx, facet, f)
			return err
		})
	}
	return g.Wait()
}

// Snapshot returns the facet's current panel state.
func (o *Orchestrator) Snapshot(facet Facet) Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.panels[facet]; ok {
		return *p
	}
	return Snapshot{State: StateEmpty}
}

func (o *Orchestrator) setPanel(facet Facet, s Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.panels[facet] = &s
}

// markFetching moves the panel to Fetching while leaving the
// previous value in place for display.
func (o *Orchestrator) markFetching(facet Facet, fp string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.panels[facet]
	if !ok {
		o.panels[facet] = &Snapshot{
			State: StateFetching, Fingerprint: fp,
		}
		return
	}
	o.panels[facet] = &Snapshot{
		State:       StateFetching,
		Fingerprint: fp,
		Value:       prev.Value,
	}
}

// keepStale restores the last good value after a failed fetch and
// returns it. Without one, the panel reverts to Empty carrying
// the error.
func (o *Orchestrator) keepStale(facet Facet, err error) any {
	o.mu.Lock()
	defer o.mu.Unlock()
	prev, ok := o.panels[facet]
	if ok && prev.Value != nil {
		o.panels[facet] = &Snapshot{
			State:       StateReady,
			Fingerprint: prev.Fingerprint,
			Value:       prev.Value,
			Err:         err,
		}
		return prev.Value
	}
	o.panels[facet] = &Snapshot{State: StateEmpty, Err: err}
	return nil
}

type errUnknownFacet string

func (e errUnknownFacet) Error() string {
	return "unknown facet: " + string(e)
}
