package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/internal/printer"
	"github.com/funnyzak/gqltap/internal/storage"
	"github.com/funnyzak/gqltap/pkg/entry"
	"github.com/funnyzak/gqltap/pkg/filter"
	"github.com/funnyzak/gqltap/pkg/i18n"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/funnyzak/gqltap/pkg/stats"
	"golang.org/x/sync/errgroup"
)

// TickInterval is how often Run refreshes the elapsed time.
const TickInterval = time.Second

// Options configures a Controller.
type Options struct {
	PreserveLog       bool
	IgnoreMethods     []string
	IgnoreURLContains []string
	PathMaxLength     int
	TraceURLTemplate  string
	Filters           []string
	Labels            i18n.Labels
	Clock             stats.Clock
}

// OptionsFromConfig maps the session section of the configuration.
func OptionsFromConfig(cfg *config.SessionConfig, labels i18n.Labels) Options {
	return Options{
		PreserveLog:       cfg.PreserveLog,
		IgnoreMethods:     cfg.IgnoreMethods,
		IgnoreURLContains: cfg.IgnoreURLContains,
		PathMaxLength:     cfg.PathMaxLength,
		TraceURLTemplate:  cfg.TraceURLTemplate,
		Filters:           cfg.Filters,
		Labels:            labels,
	}
}

// Result tells the host what happened to a request.
type Result struct {
	Row     *inspect.Row `json:"row,omitempty"`
	Dropped bool         `json:"dropped"`
	Reason  DropReason   `json:"reason,omitempty"`
}

// RowQuery selects rows for presentation.
type RowQuery struct {
	storage.ListOptions
	// OnlyVisible drops rows hidden by the current filter set before paging.
	OnlyVisible bool
}

// Controller owns one inspection session: the aggregates, the filter set, the
// pause and preserve-log flags and the stored rows. Every method is serialized
// so requests are processed one at a time, in arrival order.
type Controller struct {
	mu sync.Mutex

	store   storage.Store
	log     logger.Logger
	sinks   []Sink
	agg     *stats.Aggregator
	filters *filter.Set
	enrich  inspect.Options

	ignoreMethods map[string]struct{}
	ignoreURLs    []string

	paused   bool
	preserve bool
}

// New creates a controller. Invalid filter names are rejected.
func New(opts Options, store storage.Store, log logger.Logger, sinks ...Sink) (*Controller, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is nil")
	}

	filters := filter.NewSet()
	if len(opts.Filters) > 0 {
		parsed, err := parseFilters(opts.Filters)
		if err != nil {
			return nil, err
		}
		filters.Replace(parsed...)
	}

	methods := make(map[string]struct{}, len(opts.IgnoreMethods))
	for _, m := range opts.IgnoreMethods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods[m] = struct{}{}
		}
	}
	urls := make([]string, 0, len(opts.IgnoreURLContains))
	for _, u := range opts.IgnoreURLContains {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}

	enrich := inspect.Options{
		PathMaxLength:    opts.PathMaxLength,
		TraceURLTemplate: opts.TraceURLTemplate,
	}
	if label, ok := lookup(opts.Labels, "row.unnamed"); ok {
		enrich.UnnamedLabel = label
	}
	if label, ok := lookup(opts.Labels, "row.payload_fallback"); ok {
		enrich.FallbackLabel = label
	}

	return &Controller{
		store:         store,
		log:           log,
		sinks:         sinks,
		agg:           stats.New(opts.Clock),
		filters:       filters,
		enrich:        enrich,
		ignoreMethods: methods,
		ignoreURLs:    urls,
		preserve:      opts.PreserveLog,
	}, nil
}

// lookup only accepts labels that actually resolved; the zero Labels echoes
// keys back, which must not leak into rows.
func lookup(labels i18n.Labels, key string) (string, bool) {
	text := labels.Text(key)
	return text, text != key
}

// AddSink registers a sink for subsequent events.
func (c *Controller) AddSink(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// Handle processes one finished request. Dropped requests are reported in the
// Result and are neither stored nor aggregated. Sink failures are logged only.
func (c *Controller) Handle(ctx context.Context, rec *entry.Record) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handleLocked(ctx, rec)
}

// HandleBatch processes records in order and stops at the first store error.
func (c *Controller) HandleBatch(ctx context.Context, recs []entry.Record) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	results := make([]Result, 0, len(recs))
	for i := range recs {
		res, err := c.handleLocked(ctx, &recs[i])
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (c *Controller) handleLocked(ctx context.Context, rec *entry.Record) (Result, error) {
	if rec == nil {
		return Result{}, fmt.Errorf("request record is nil")
	}
	if reason, drop := c.dropReason(rec); drop {
		c.log.Debug("Request dropped", "reason", string(reason), "method", rec.Method, "url", rec.URL)
		c.publish(ctx, Event{Kind: EventDropped, Reason: reason, Stats: c.agg.Snapshot(), State: c.stateLocked()})
		return Result{Dropped: true, Reason: reason}, nil
	}

	row := inspect.Enrich(rec, c.enrich)
	row.Visible = filter.ShouldShow(row.Category, row.Bucket.Slow(), c.filters)

	// Aggregate only stored rows so a retried request is counted once.
	if err := c.store.Add(row); err != nil {
		c.log.Error("Failed to store row", "error", err, "row_id", row.ID)
		return Result{Row: row}, fmt.Errorf("store row: %w", err)
	}
	c.agg.RecordRow(row)

	if row.Category == inspect.CategoryGraphQL && row.GraphQL == nil {
		c.log.Debug("GraphQL payload not parsable", "url", row.URL)
	}
	c.publish(ctx, Event{Kind: EventRow, Row: row, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return Result{Row: row}, nil
}

func (c *Controller) dropReason(rec *entry.Record) (DropReason, bool) {
	if c.paused {
		return DropPaused, true
	}
	if _, ok := c.ignoreMethods[strings.ToUpper(rec.Method)]; ok {
		return DropIgnoredMethod, true
	}
	for _, needle := range c.ignoreURLs {
		if strings.Contains(rec.URL, needle) {
			return DropIgnoredURL, true
		}
	}
	return "", false
}

// Navigate reacts to the inspected page navigating. Without preserve-log the
// rows and every stat group are cleared; the elapsed timer always restarts.
func (c *Controller) Navigate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	notice := printer.NoticeNavigatedPreserved
	if c.preserve {
		c.agg.Restart()
	} else {
		if err := c.store.Clear(); err != nil {
			return fmt.Errorf("clear rows: %w", err)
		}
		c.agg.Reset()
		notice = printer.NoticeNavigated
	}
	c.log.Info("Page navigated", "preserve_log", c.preserve)
	c.publish(ctx, Event{Kind: EventReset, Notice: notice, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return nil
}

// Clear drops every row and resets the stats.
func (c *Controller) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		return fmt.Errorf("clear rows: %w", err)
	}
	c.agg.Reset()
	c.log.Info("Session cleared")
	c.publish(ctx, Event{Kind: EventReset, Notice: printer.NoticeCleared, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return nil
}

// SetPaused sets the recording flag. While paused, requests are dropped, not
// buffered, and the elapsed time is frozen.
func (c *Controller) SetPaused(ctx context.Context, paused bool) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPausedLocked(ctx, paused)
}

// TogglePause flips the recording flag.
func (c *Controller) TogglePause(ctx context.Context) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPausedLocked(ctx, !c.paused)
}

func (c *Controller) setPausedLocked(ctx context.Context, paused bool) State {
	if c.paused == paused {
		return c.stateLocked()
	}
	c.paused = paused
	notice := printer.NoticeResumed
	if paused {
		notice = printer.NoticePaused
	} else {
		c.agg.Tick()
	}
	c.publish(ctx, Event{Kind: EventState, Notice: notice, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return c.stateLocked()
}

// SetPreserve sets the preserve-log flag. Turning it off drops the rows kept
// from earlier pages; the stats are left alone.
func (c *Controller) SetPreserve(ctx context.Context, preserve bool) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPreserveLocked(ctx, preserve)
}

// TogglePreserve flips the preserve-log flag.
func (c *Controller) TogglePreserve(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPreserveLocked(ctx, !c.preserve)
}

func (c *Controller) setPreserveLocked(ctx context.Context, preserve bool) (State, error) {
	if c.preserve == preserve {
		return c.stateLocked(), nil
	}
	if preserve {
		c.preserve = true
		c.publish(ctx, Event{Kind: EventState, Stats: c.agg.Snapshot(), State: c.stateLocked()})
		return c.stateLocked(), nil
	}

	if err := c.store.Clear(); err != nil {
		return c.stateLocked(), fmt.Errorf("clear rows: %w", err)
	}
	c.preserve = false
	c.log.Info("Preserve log disabled, rows cleared")
	c.publish(ctx, Event{Kind: EventReset, Notice: printer.NoticePreserveDisabled, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return c.stateLocked(), nil
}

// ToggleFilter flips one filter button.
func (c *Controller) ToggleFilter(ctx context.Context, name string) (State, error) {
	f, err := filter.Parse(name)
	if err != nil {
		return State{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters.Toggle(f)
	c.publish(ctx, Event{Kind: EventState, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return c.stateLocked(), nil
}

// SetFilters replaces the active filter set.
func (c *Controller) SetFilters(ctx context.Context, names []string) (State, error) {
	parsed, err := parseFilters(names)
	if err != nil {
		return State{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters.Replace(parsed...)
	c.publish(ctx, Event{Kind: EventState, Stats: c.agg.Snapshot(), State: c.stateLocked()})
	return c.stateLocked(), nil
}

// Filters returns the active filters.
func (c *Controller) Filters() []filter.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filters.Active()
}

// State returns the current flags and filters.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	return State{Paused: c.paused, PreserveLog: c.preserve, Filters: c.filters.Active()}
}

// Stats returns a copy of the aggregates.
func (c *Controller) Stats() stats.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Snapshot()
}

// OtherStats returns the totals of requests outside the surfaced categories.
func (c *Controller) OtherStats() stats.CategoryStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agg.Category(inspect.CategoryOther)
}

// Rows lists stored rows in arrival order with Visible evaluated against the
// current filter set.
func (c *Controller) Rows(q RowQuery) ([]*inspect.Row, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !q.OnlyVisible {
		rows, total, err := c.store.List(q.ListOptions)
		if err != nil {
			return nil, 0, err
		}
		return c.withVisibility(rows), total, nil
	}

	var visible []*inspect.Row
	err := c.store.Iterate(storage.ListOptions{Search: q.Search, Category: q.Category}, func(row *inspect.Row) bool {
		if filter.ShouldShow(row.Category, row.Bucket.Slow(), c.filters) {
			visible = append(visible, row)
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	total := len(visible)
	start, end := page(total, q.Limit, q.Offset)
	return c.withVisibility(visible[start:end]), total, nil
}

// Row returns one stored row.
func (c *Controller) Row(id string) (*inspect.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row, err := c.store.Get(id)
	if err != nil {
		return nil, err
	}
	return c.withVisibility([]*inspect.Row{row})[0], nil
}

// withVisibility copies rows so the stored values are never mutated.
func (c *Controller) withVisibility(rows []*inspect.Row) []*inspect.Row {
	out := make([]*inspect.Row, len(rows))
	for i, row := range rows {
		cp := *row
		cp.Visible = filter.ShouldShow(cp.Category, cp.Bucket.Slow(), c.filters)
		out[i] = &cp
	}
	return out
}

// Tick refreshes the elapsed time and notifies sinks. It does nothing while
// paused.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	c.agg.Tick()
	c.publish(ctx, Event{Kind: EventStats, Stats: c.agg.Snapshot(), State: c.stateLocked()})
}

// Run ticks every TickInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// publish fans ev out to every sink concurrently and waits for all of them.
func (c *Controller) publish(ctx context.Context, ev Event) {
	if len(c.sinks) == 0 {
		return
	}
	var g errgroup.Group
	for _, sink := range c.sinks {
		g.Go(func() error {
			if err := sink.Publish(ctx, ev); err != nil {
				c.log.Warn("Session sink failed", "sink", fmt.Sprintf("%T", sink), "event", string(ev.Kind), "error", err)
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

func parseFilters(names []string) ([]filter.Filter, error) {
	out := make([]filter.Filter, 0, len(names))
	for _, name := range names {
		f, err := filter.Parse(name)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func page(total, limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return offset, end
}
