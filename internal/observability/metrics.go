package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// detection pipeline.
type Metrics struct {
	CycleRunning  prometheus.Gauge
	CyclesTotal   *prometheus.CounterVec // labels: status={success,partial,failed}
	CyclesSkipped prometheus.Counter
	CycleDuration prometheus.Histogram
	StageDuration *prometheus.HistogramVec // labels: stage

	DetectionsFetched *prometheus.CounterVec // labels: source
	FetchErrors       *prometheus.CounterVec // labels: source
	DetectionsNew     prometheus.Counter
	DetectionsDuped   prometheus.Counter

	EventsCreated prometheus.Counter
	EventsUpdated prometheus.Counter
	EventsScored  prometheus.Counter
	EventsStale   prometheus.Counter

	EnrichRequests *prometheus.CounterVec   // labels: provider={weather,roads}, outcome={success,error}
	EnrichDuration *prometheus.HistogramVec // labels: provider

	AlertsSent       prometheus.Counter
	AlertsSuppressed prometheus.Counter
	AlertsFailed     prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.CycleRunning,
		m.CyclesTotal,
		m.CyclesSkipped,
		m.CycleDuration,
		m.StageDuration,
		m.DetectionsFetched,
		m.FetchErrors,
		m.DetectionsNew,
		m.DetectionsDuped,
		m.EventsCreated,
		m.EventsUpdated,
		m.EventsScored,
		m.EventsStale,
		m.EnrichRequests,
		m.EnrichDuration,
		m.AlertsSent,
		m.AlertsSuppressed,
		m.AlertsFailed,
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
		CycleRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "firesentinel",
			Name:      "cycle_running",
			Help:      "1 while a detection cycle is executing, 0 otherwise.",
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "cycles_total",
			Help:      "Completed detection cycles by final status.",
		}, []string{"status"}),
		CyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "cycles_skipped_total",
			Help:      "Scheduled cycles skipped because the previous one was still running.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "firesentinel",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-score-alert cycle.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firesentinel",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 180},
		}, []string{"stage"}),
		DetectionsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "detections_fetched_total",
			Help:      "Thermal anomalies fetched per satellite source, after filtering.",
		}, []string{"source"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "fetch_errors_total",
			Help:      "Failed fetches per satellite source.",
		}, []string{"source"}),
		DetectionsNew: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "detections_new_total",
			Help:      "Detections that survived deduplication.",
		}),
		DetectionsDuped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "detections_duplicate_total",
			Help:      "Detections discarded as duplicates of stored ones.",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "events_created_total",
			Help:      "New fire events created by clustering.",
		}),
		EventsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "events_updated_total",
			Help:      "Existing fire events that absorbed new detections.",
		}),
		EventsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "events_scored_total",
			Help:      "Fire events that received an intentionality score.",
		}),
		EventsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "events_stale_total",
			Help:      "Fire events closed for inactivity.",
		}),
		EnrichRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "enrich_requests_total",
			Help:      "Context provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		EnrichDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firesentinel",
			Name:      "enrich_api_duration_seconds",
			Help:      "Context provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "alerts_sent_total",
			Help:      "Alerts delivered across all channels.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "alerts_suppressed_total",
			Help:      "Alerts withheld by the per-event rate limit.",
		}),
		AlertsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "firesentinel",
			Name:      "alerts_failed_total",
			Help:      "Alert deliveries that failed.",
		}),
	}
}
