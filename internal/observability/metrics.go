package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// forecast fetch pipeline.
type Metrics struct {
	UpstreamRequests        *prometheus.CounterVec   // labels: kind={wind,precipitation}, outcome={success,error}
	UpstreamRequestDuration *prometheus.HistogramVec // labels: kind={wind,precipitation}
	SnapshotsStored         *prometheus.CounterVec   // labels: kind={wind,precipitation}
	FetchCycleDuration      prometheus.Histogram
	TargetsSkipped          prometheus.Counter
	SchedulerRunning        prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamRequestDuration,
		m.SnapshotsStored,
		m.FetchCycleDuration,
		m.TargetsSkipped,
		m.SchedulerRunning,
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
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windcache",
			Name:      "upstream_requests_total",
			Help:      "Upstream OpenDAP fetches by data kind and outcome.",
		}, []string{"kind", "outcome"}),
		UpstreamRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "windcache",
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of a complete upstream fetch including fallback attempts.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		SnapshotsStored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "windcache",
			Name:      "snapshots_stored_total",
			Help:      "Forecast snapshots written to the cache by data kind.",
		}, []string{"kind"}),
		FetchCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "windcache",
			Name:      "fetch_cycle_duration_seconds",
			Help:      "Duration of a full-history fetch cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		TargetsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "windcache",
			Name:      "targets_skipped_total",
			Help:      "Fetch targets skipped because cached data already covered them.",
		}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "windcache",
			Name:      "scheduler_running",
			Help:      "1 when the fetch scheduler is active, 0 otherwise.",
		}),
	}
}
