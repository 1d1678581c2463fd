package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	searchTotal       *prometheus.CounterVec
	searchDuration    *prometheus.HistogramVec
	searchDegraded    *prometheus.CounterVec
	fallbackScanTotal *prometheus.CounterVec

	assembleDuration  prometheus.Histogram
	contextTypeTotal  *prometheus.CounterVec
	storeWriteTotal   *prometheus.CounterVec
	storeWriteLatency *prometheus.HistogramVec

	embedDuration *prometheus.HistogramVec
	embedErrors   *prometheus.CounterVec

	ingestTotal    *prometheus.CounterVec
	ingestChunks   prometheus.Counter
	ingestDuration prometheus.Histogram

	activeSessions   prometheus.Gauge
	turnsPurgedTotal prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			searchTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_search_total",
					Help: "Total similarity searches by source and status.",
				},
				[]string{"source", "status"},
			),
			searchDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mnemo_search_duration_seconds",
					Help:    "Similarity search duration in seconds by source.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"source"},
			),
			searchDegraded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_search_degraded_total",
					Help: "Total searches degraded to an empty result by source.",
				},
				[]string{"source"},
			),
			fallbackScanTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_fallback_scan_total",
					Help: "Total exhaustive scan fallbacks taken after an empty index result.",
				},
				[]string{"source"},
			),
			assembleDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "mnemo_assemble_duration_seconds",
					Help:    "Hybrid context assembly duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			contextTypeTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_context_type_total",
					Help: "Assembled contexts by resulting context type.",
				},
				[]string{"type"},
			),
			storeWriteTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_store_write_total",
					Help: "Total memory writes by tier and status.",
				},
				[]string{"tier", "status"},
			),
			storeWriteLatency: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mnemo_store_write_duration_seconds",
					Help:    "Memory write duration in seconds by tier.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tier"},
			),
			embedDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "mnemo_embed_duration_seconds",
					Help:    "Embedding call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			embedErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_embed_errors_total",
					Help: "Total embedding call failures by provider.",
				},
				[]string{"provider"},
			),
			ingestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "mnemo_ingest_total",
					Help: "Total document ingestions by status.",
				},
				[]string{"status"},
			),
			ingestChunks: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "mnemo_ingest_chunks_total",
					Help: "Total chunks produced by document ingestion.",
				},
			),
			ingestDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "mnemo_ingest_duration_seconds",
					Help:    "Document ingestion duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "mnemo_active_sessions",
					Help: "Sessions with at least one stored turn or long-term record.",
				},
			),
			turnsPurgedTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "mnemo_turns_purged_total",
					Help: "Total expired short-term turns removed by the purge loop.",
				},
			),
		}

		prometheus.MustRegister(
			m.searchTotal,
			m.searchDuration,
			m.searchDegraded,
			m.fallbackScanTotal,
			m.assembleDuration,
			m.contextTypeTotal,
			m.storeWriteTotal,
			m.storeWriteLatency,
			m.embedDuration,
			m.embedErrors,
			m.ingestTotal,
			m.ingestChunks,
			m.ingestDuration,
			m.activeSessions,
			m.turnsPurgedTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordSearch(source string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.searchTotal.WithLabelValues(source, status).Inc()
	m.searchDuration.WithLabelValues(source).Observe(duration.Seconds())
	if !success {
		m.searchDegraded.WithLabelValues(source).Inc()
	}
}

func RecordFallbackScan(source string) {
	getMetrics().fallbackScanTotal.WithLabelValues(source).Inc()
}

func RecordAssemble(contextType string, duration time.Duration) {
	m := getMetrics()
	m.assembleDuration.Observe(duration.Seconds())
	m.contextTypeTotal.WithLabelValues(contextType).Inc()
}

func RecordStoreWrite(tier string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.storeWriteTotal.WithLabelValues(tier, status).Inc()
	m.storeWriteLatency.WithLabelValues(tier).Observe(duration.Seconds())
}

func RecordEmbed(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	m.embedDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if !success {
		m.embedErrors.WithLabelValues(provider).Inc()
	}
}

func RecordIngest(duration time.Duration, chunks int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.ingestTotal.WithLabelValues(status).Inc()
	m.ingestChunks.Add(float64(chunks))
	m.ingestDuration.Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func AddPurgedTurns(count int) {
	if count <= 0 {
		return
	}
	getMetrics().turnsPurgedTotal.Add(float64(count))
}
