package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/localize/internal/localize/pipeline"
)

// Metrics exports pipeline activity to Prometheus. It implements
// pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	outcomes  *prometheus.CounterVec
	score     prometheus.Gauge
	duration  prometheus.Histogram
	mapBuilds prometheus.Counter
}

var _ pipeline.Observer = (*Metrics)(nil)

// NewMetrics registers the localizer collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "localize",
				Subsystem: "scan",
				Name:      "outcomes_total",
				Help:      "Scans handled, by outcome.",
			},
			[]string{"outcome"},
		),
		score: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "localize",
			Subsystem: "match",
			Name:      "score",
			Help:      "Score of the most recent scan match.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "localize",
			Subsystem: "match",
			Name:      "duration_seconds",
			Help:      "Time spent in one scan match.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		mapBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "localize",
			Subsystem: "map",
			Name:      "builds_total",
			Help:      "Correlation grids built from received maps.",
		}),
	}
	m.registry.MustRegister(m.outcomes, m.score, m.duration, m.mapBuilds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Pre-create every outcome series so dashboards see zeros.
	for _, o := range pipeline.Outcomes() {
		m.outcomes.WithLabelValues(o.String())
	}
	return m
}

// ObserveOutcome implements pipeline.Observer.
func (m *Metrics) ObserveOutcome(o pipeline.Outcome) {
	m.outcomes.WithLabelValues(o.String()).Inc()
}

// ObserveMatch implements pipeline.Observer.
func (m *Metrics) ObserveMatch(elapsed time.Duration, score float64) {
	m.duration.Observe(elapsed.Seconds())
	m.score.Set(score)
}

// ObserveMapBuild counts one installed correlation grid.
func (m *Metrics) ObserveMapBuild() { m.mapBuilds.Inc() }

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
