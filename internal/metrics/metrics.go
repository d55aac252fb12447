// Package metrics defines the Prometheus collectors recorded during an
// experiment run and exports them in the node-exporter textfile format.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wizenheimer/cranrank"
)

const namespace = "cranrank"

// Metrics holds all Prometheus collectors of one run. Each Metrics owns its
// registry, so tests and repeated runs never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	DocsIndexed          prometheus.Gauge
	VocabularySize       prometheus.Gauge
	IndexBuildSeconds    prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	AveragePrecision     *prometheus.HistogramVec
	MeanAveragePrecision *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		DocsIndexed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "documents_indexed",
				Help:      "Number of documents in the index.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "vocabulary_terms",
				Help:      "Number of distinct terms in the index.",
			},
		),
		IndexBuildSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "index_build_seconds",
				Help:      "Time spent building or loading the index.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_evaluated_total",
				Help:      "Queries evaluated by model and outcome (ranked, failed).",
			},
			[]string{"model", "outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_latency_seconds",
				Help:      "Time to parse and rank one query.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"model"},
		),
		AveragePrecision: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "average_precision",
				Help:      "Distribution of per-query average precision.",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"model"},
		),
		MeanAveragePrecision: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "mean_average_precision",
				Help:      "Mean average precision of the last run by model.",
			},
			[]string{"model"},
		),
	}

	m.registry.MustRegister(
		m.DocsIndexed,
		m.VocabularySize,
		m.IndexBuildSeconds,
		m.QueriesTotal,
		m.QueryLatency,
		m.AveragePrecision,
		m.MeanAveragePrecision,
	)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveIndex records the size of the index and how long it took to obtain.
func (m *Metrics) ObserveIndex(idx *cranrank.InvertedIndex, elapsed time.Duration) {
	m.DocsIndexed.Set(float64(idx.TotalDocs()))
	m.VocabularySize.Set(float64(len(idx.Terms())))
	m.IndexBuildSeconds.Set(elapsed.Seconds())
}

// QueryObserver returns a callback for cranrank.WithObserver that records
// every evaluated query under model.
func (m *Metrics) QueryObserver(model string) func(cranrank.QueryOutcome) {
	ranked := m.QueriesTotal.WithLabelValues(model, "ranked")
	failed := m.QueriesTotal.WithLabelValues(model, "failed")
	latency := m.QueryLatency.WithLabelValues(model)
	ap := m.AveragePrecision.WithLabelValues(model)

	return func(o cranrank.QueryOutcome) {
		latency.Observe(o.Duration.Seconds())
		if o.Err != nil {
			failed.Inc()
			return
		}
		ranked.Inc()
		ap.Observe(o.AP)
	}
}

// ObserveMAP records the final MAP of model.
func (m *Metrics) ObserveMAP(model string, value float64) {
	m.MeanAveragePrecision.WithLabelValues(model).Set(value)
}

// WriteTextfile writes every collector to path in the text exposition format.
// The write is atomic, so a node exporter never reads a partial file.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
