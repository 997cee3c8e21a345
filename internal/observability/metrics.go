package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wildfire_risk"

// Metrics holds the Prometheus counters, histograms, and gauges for feature
// preparation and risk scoring.
type Metrics struct {
	// Preparation metrics.
	RecordsRead       prometheus.Counter
	TargetRowsDropped prometheus.Counter
	FieldsImputed     *prometheus.CounterVec // labels: column
	SchemaDefaults    *prometheus.CounterVec // labels: column
	FetchRetries      prometheus.Counter
	PrepareDuration   prometheus.Histogram

	// Scoring metrics.
	Predictions   *prometheus.CounterVec // labels: tier
	ScoringErrors *prometheus.CounterVec // labels: reason
	ScoreDuration prometheus.Histogram
	ScoreCache    *prometheus.CounterVec // labels: result={hit,miss}
	BundleLoaded  prometheus.Gauge

	// Prediction sink metrics.
	PredictionsPublished prometheus.Counter
	PublishErrors        prometheus.Counter
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Total raw incident records read from the source.",
		}),
		TargetRowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_rows_dropped_total",
			Help:      "Rows excluded because FIRE_SIZE could not be coerced to a number.",
		}),
		FieldsImputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_imputed_total",
			Help:      "Missing or malformed field values filled by the engine, by column.",
		}, []string{"column"}),
		SchemaDefaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_defaults_total",
			Help:      "Expected source columns that were absent and filled column-wide.",
		}, []string{"column"}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Source fetch attempts that failed and were retried.",
		}),
		PrepareDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prepare_duration_seconds",
			Help:      "Duration of a complete fetch-engineer-fit-persist run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Predictions served by risk tier.",
		}, []string{"tier"}),
		ScoringErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scoring_errors_total",
			Help:      "Scoring requests that failed, by reason.",
		}, []string{"reason"}),
		ScoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "score_duration_seconds",
			Help:      "Time spent transforming and classifying one incident.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		ScoreCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "score_cache_total",
			Help:      "Prediction cache lookups by result.",
		}, []string{"result"}),
		BundleLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bundle_loaded",
			Help:      "1 when a model bundle is loaded and scoring is available, 0 otherwise.",
		}),
		PredictionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_published_total",
			Help:      "Predictions written to the audit topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed writes to the audit topic.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RecordsRead,
		m.TargetRowsDropped,
		m.FieldsImputed,
		m.SchemaDefaults,
		m.FetchRetries,
		m.PrepareDuration,
		m.Predictions,
		m.ScoringErrors,
		m.ScoreDuration,
		m.ScoreCache,
		m.BundleLoaded,
		m.PredictionsPublished,
		m.PublishErrors,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

// NewMetricsWithRegistry registers all metrics with reg.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}
