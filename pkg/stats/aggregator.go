package stats

import (
	"time"

	"github.com/funnyzak/gqltap/pkg/entry"
	"github.com/funnyzak/gqltap/pkg/inspect"
)

// Clock returns the current time.
type Clock func() time.Time

// CategoryStats is the running total for one category.
type CategoryStats struct {
	Count       int     `json:"count"`
	TotalTimeMs float64 `json:"total_time_ms"`
}

// SlowStats aggregates requests in the warning and critical buckets.
type SlowStats struct {
	WarningCount   int     `json:"warning_count"`
	WarningTimeMs  float64 `json:"warning_time_ms"`
	CriticalCount  int     `json:"critical_count"`
	CriticalTimeMs float64 `json:"critical_time_ms"`
}

// Snapshot is a copy of the aggregates surfaced to the presentation layer.
type Snapshot struct {
	GraphQL        CategoryStats `json:"graphql"`
	Token          CategoryStats `json:"token"`
	Access         CategoryStats `json:"access"`
	Slow           SlowStats     `json:"slow"`
	ElapsedSeconds int64         `json:"elapsed_seconds"`
	EpochStart     time.Time     `json:"epoch_start"`
}

// Aggregator keeps running per-category and per-bucket totals over an
// unbounded request stream. It is not safe for concurrent use.
type Aggregator struct {
	clock      Clock
	categories map[inspect.Category]*CategoryStats
	slow       SlowStats
	epoch      time.Time
	elapsed    int64
}

// New creates an aggregator; a nil clock uses time.Now.
func New(clock Clock) *Aggregator {
	if clock == nil {
		clock = time.Now
	}
	a := &Aggregator{clock: clock}
	a.Reset()
	return a
}

// Reset zeroes every counter and starts a new epoch.
func (a *Aggregator) Reset() {
	categories := make(map[inspect.Category]*CategoryStats, len(inspect.Categories))
	for _, c := range inspect.Categories {
		categories[c] = &CategoryStats{}
	}
	a.categories = categories
	a.slow = SlowStats{}
	a.Restart()
}

// Restart starts a new epoch and leaves the counters alone.
func (a *Aggregator) Restart() {
	a.epoch = a.clock()
	a.elapsed = 0
}

// Record folds rec into the aggregates. The category and latency updates are
// independent: a request can be both graphql and critical.
func (a *Aggregator) Record(rec *entry.Record) {
	if rec == nil {
		return
	}
	a.add(inspect.CategoryOf(rec), rec.DurationMs)
}

// RecordRow folds an already enriched row into the aggregates.
func (a *Aggregator) RecordRow(row *inspect.Row) {
	if row == nil {
		return
	}
	a.add(row.Category, row.DurationMs)
}

func (a *Aggregator) add(category inspect.Category, durationMs float64) {
	c, ok := a.categories[category]
	if !ok {
		c = &CategoryStats{}
		a.categories[category] = c
	}
	c.Count++
	c.TotalTimeMs += durationMs

	switch inspect.BucketOf(durationMs) {
	case inspect.BucketWarning:
		a.slow.WarningCount++
		a.slow.WarningTimeMs += durationMs
	case inspect.BucketCritical:
		a.slow.CriticalCount++
		a.slow.CriticalTimeMs += durationMs
	}
	a.Tick()
}

// Tick refreshes the displayed elapsed seconds from the clock. Callers skip it
// while paused so the display stays frozen.
func (a *Aggregator) Tick() int64 {
	elapsed := int64(a.clock().Sub(a.epoch) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	a.elapsed = elapsed
	return elapsed
}

// Category returns the totals of any category, including ones the snapshot
// does not surface.
func (a *Aggregator) Category(c inspect.Category) CategoryStats {
	if s, ok := a.categories[c]; ok {
		return *s
	}
	return CategoryStats{}
}

// Snapshot copies the current aggregates.
func (a *Aggregator) Snapshot() Snapshot {
	return Snapshot{
		GraphQL:        a.Category(inspect.CategoryGraphQL),
		Token:          a.Category(inspect.CategoryToken),
		Access:         a.Category(inspect.CategoryAccess),
		Slow:           a.slow,
		ElapsedSeconds: a.elapsed,
		EpochStart:     a.epoch,
	}
}
