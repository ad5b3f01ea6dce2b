package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline, alert scanner, and push channel.
type Metrics struct {
	IngestRuns         *prometheus.CounterVec // labels: outcome={success,error,skipped}
	AsteroidsInserted  prometheus.Counter
	ApproachesInserted prometheus.Counter
	IngestDuration     prometheus.Histogram
	IngestRunning      prometheus.Gauge

	AlertScans    *prometheus.CounterVec // labels: outcome={success,error}
	AlertsEmitted prometheus.Counter

	WSClients         prometheus.Gauge
	WSMessagesDropped prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IngestRuns,
		m.AsteroidsInserted,
		m.ApproachesInserted,
		m.IngestDuration,
		m.IngestRunning,
		m.AlertScans,
		m.AlertsEmitted,
		m.WSClients,
		m.WSMessagesDropped,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IngestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome.",
		}, []string{"outcome"}),
		AsteroidsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "asteroids_inserted_total",
			Help:      "New asteroid rows created by ingestion.",
		}),
		ApproachesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "approaches_inserted_total",
			Help:      "New close-approach rows created by ingestion.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "neo_watch",
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-persist run.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neo_watch",
			Name:      "ingest_running",
			Help:      "1 while an ingestion run is in flight.",
		}),
		AlertScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "alert_scans_total",
			Help:      "Alert scans by outcome.",
		}, []string{"outcome"}),
		AlertsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "alerts_emitted_total",
			Help:      "High-risk approach notifications pushed to clients.",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "neo_watch",
			Name:      "ws_clients",
			Help:      "Currently connected websocket clients.",
		}),
		WSMessagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "neo_watch",
			Name:      "ws_messages_dropped_total",
			Help:      "Broadcast messages dropped because a client's send queue was full.",
		}),
	}
}
