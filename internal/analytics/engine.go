package analytics

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bishleshok-ai/bishleshok/internal/model"
)

// View is everything derived from one record set and filter. Views are
// immutable once built.
type View struct {
	Filter          model.DateRange  `json:"filter"`
	Records         []model.Record   `json:"-"`
	KPIs            KPIs             `json:"kpis"`
	Dashboard       Dashboard        `json:"dashboard"`
	History         History          `json:"history"`
	Anomalies       []Anomaly        `json:"anomalies"`
	Forecast        *Forecast        `json:"forecast"`
	Recommendations []Recommendation `json:"recommendations"`
	ComputedAt      time.Time        `json:"computedAt"`
}

// Compute builds a View from recs after applying filter.
func Compute(recs []model.Record, filter model.DateRange, now time.Time) *View {
	filtered := filter.Apply(recs)
	h := BuildHistory(filtered)
	anomalies := DetectAnomalies(h.Dates, h.Revenues)
	f := BuildForecast(h, now)
	return &View{
		Filter:          filter,
		Records:         filtered,
		KPIs:            ComputeKPIs(filtered),
		Dashboard:       Aggregate(filtered),
		History:         h,
		Anomalies:       anomalies,
		Forecast:        f,
		Recommendations: Recommend(h, f, anomalies),
		ComputedAt:      now,
	}
}

// Engine recomputes the View whenever the records or the filter change.
// Readers always see a complete View.
type Engine struct {
	now func() time.Time

	mu        sync.Mutex
	records   []model.Record
	filter    model.DateRange
	listeners []func(*View)

	view atomic.Pointer[View]
}

// NewEngine creates an Engine with an empty View.
func NewEngine() *Engine {
	e := &Engine{now: time.Now}
	e.view.Store(Compute(nil, model.DateRange{}, e.now()))
	return e
}

// OnUpdate registers fn to receive every new View.
func (e *Engine) OnUpdate(fn func(*View)) {
	e.mu.Lock()
	e.listeners = append(e.listeners, fn)
	e.mu.Unlock()
}

// SetDocuments replaces the record set. It matches the collection change
// listener signature.
func (e *Engine) SetDocuments(docs []model.Document) {
	e.SetRecords(model.Records(docs))
}

// SetRecords replaces the record set and recomputes.
func (e *Engine) SetRecords(recs []model.Record) {
	e.mu.Lock()
	e.records = recs
	e.recomputeLocked()
}

// SetFilter applies a date filter and recomputes. A filter missing either
// end is stored but has no effect.
func (e *Engine) SetFilter(r model.DateRange) {
	e.mu.Lock()
	e.filter = r
	e.recomputeLocked()
}

// ClearFilter removes the date filter.
func (e *Engine) ClearFilter() {
	e.SetFilter(model.DateRange{})
}

// Filter returns the current filter.
func (e *Engine) Filter() model.DateRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.filter
}

// View returns the latest View.
func (e *Engine) View() *View {
	return e.view.Load()
}

// recomputeLocked must be called with e.mu held; it releases it.
func (e *Engine) recomputeLocked() {
	v := Compute(e.records, e.filter, e.now())
	e.view.Store(v)
	listeners := e.listeners
	e.mu.Unlock()

	zap.L().Debug("analytics: recomputed",
		zap.Int("records", len(v.Records)),
		zap.Bool("filtered", v.Filter.Active()),
		zap.Int("anomalies", len(v.Anomalies)),
	)
	for _, fn := range listeners {
		fn(v)
	}
}
