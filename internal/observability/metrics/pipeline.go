package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics is safe to use through a nil pointer; every method is a
// no-op then.
type PipelineMetrics struct {
	registry *prometheus.Registry

	documentsTotal   *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	pagesTotal       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	pagesInFlight    prometheus.Gauge
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "docextract",
			Subsystem:   "pipeline",
			Name:        "documents_total",
			Help:        "Processed documents by source type and run status.",
			ConstLabels: constLabels,
		},
		[]string{"source_type", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "docextract",
			Subsystem:   "pipeline",
			Name:        "document_duration_seconds",
			Help:        "End-to-end document processing duration in seconds.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"source_type"},
	)
	pagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "docextract",
			Subsystem:   "pipeline",
			Name:        "pages_total",
			Help:        "Processed pages by outcome status.",
			ConstLabels: constLabels,
		},
		[]string{"status"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "docextract",
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Duration of a single pipeline stage in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	pagesInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "docextract",
			Subsystem:   "pipeline",
			Name:        "pages_in_flight",
			Help:        "Number of pages currently being processed.",
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(documentsTotal, documentDuration, pagesTotal, stageDuration, pagesInFlight)

	return &PipelineMetrics{
		registry:         registry,
		documentsTotal:   documentsTotal,
		documentDuration: documentDuration,
		pagesTotal:       pagesTotal,
		stageDuration:    stageDuration,
		pagesInFlight:    pagesInFlight,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartPage() {
	if m == nil {
		return
	}
	m.pagesInFlight.Inc()
}

func (m *PipelineMetrics) FinishPage(status string) {
	if m == nil {
		return
	}
	m.pagesInFlight.Dec()
	m.pagesTotal.WithLabelValues(status).Inc()
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) FinishDocument(sourceType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.documentsTotal.WithLabelValues(sourceType, status).Inc()
	m.documentDuration.WithLabelValues(sourceType).Observe(duration.Seconds())
}
