package metrics

import (
	"context"
	"net/http"

	"github.com/funnyzak/gqltap/internal/session"
	"github.com/funnyzak/gqltap/pkg/inspect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gqltap"

// Metrics mirrors the session aggregates as prometheus series. It is a
// session.Sink; counters are process-lifetime and survive session resets.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	GraphQLParseFailures prometheus.Counter
	DroppedTotal         *prometheus.CounterVec
	ResetsTotal          *prometheus.CounterVec
	SessionElapsed       prometheus.Gauge
	Paused               prometheus.Gauge
	LiveClients          prometheus.Gauge
}

// New creates the metrics on a private registry.
func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Recorded requests by category and latency bucket",
		}, []string{"category", "bucket"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of recorded requests",
			Buckets:   []float64{0.05, 0.1, 0.2, inspect.WarningThresholdMs / 1000.0, 0.5, inspect.CriticalThresholdMs / 1000.0, 1, 2, 5},
		}, []string{"category"}),
		GraphQLParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graphql_parse_failures_total",
			Help:      "GraphQL requests whose payload could not be extracted",
		}),
		DroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Requests not recorded, by reason",
		}, []string{"reason"}),
		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_resets_total",
			Help:      "Session resets by cause",
		}, []string{"cause"}),
		SessionElapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_elapsed_seconds",
			Help:      "Elapsed time of the current session epoch",
		}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "1 while recording is paused",
		}),
		LiveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Connected live feed clients",
		}),
	}
	r.MustRegister(m.RequestsTotal, m.RequestDuration, m.GraphQLParseFailures, m.DroppedTotal,
		m.ResetsTotal, m.SessionElapsed, m.Paused, m.LiveClients)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Publish implements session.Sink.
func (m *Metrics) Publish(_ context.Context, ev session.Event) error {
	switch ev.Kind {
	case session.EventRow:
		if row := ev.Row; row != nil {
			m.RequestsTotal.WithLabelValues(string(row.Category), string(row.Bucket)).Inc()
			m.RequestDuration.WithLabelValues(string(row.Category)).Observe(row.DurationMs / 1000)
			if row.Category == inspect.CategoryGraphQL && row.GraphQL == nil {
				m.GraphQLParseFailures.Inc()
			}
		}
	case session.EventDropped:
		m.DroppedTotal.WithLabelValues(string(ev.Reason)).Inc()
	case session.EventReset:
		m.ResetsTotal.WithLabelValues(string(ev.Notice)).Inc()
	}
	m.SessionElapsed.Set(float64(ev.Stats.ElapsedSeconds))
	if ev.State.Paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
	return nil
}
