// Package metrics provides Prometheus-compatible metrics for trustd.
package metrics

import (
	"time"
)

// TrustdMetrics holds all trustd-specific metrics.
type TrustdMetrics struct {
	registry *Registry

	// Counters
	SamplesIngested    *Counter
	DetectionsShort    *Counter
	DetectionsHybrid   *Counter
	DetectionsLLM      *Counter
	LLMEscalations     *Counter
	LLMFailures        *Counter
	ClusterUpdates     *Counter
	IngestRuns         *Counter
	IngestFailures     *Counter
	EffortScores       *Counter
	RequestsTotal      *Counter
	RequestErrors      *Counter
	ErrorsTotal        *Counter

	// Gauges
	ClusterCount      *Gauge
	LastIngestTs      *Gauge
	DatabaseSizeBytes *Gauge
	ActiveRequests    *Gauge
	UptimeSeconds     *Gauge

	// Histograms
	AnalyzeDuration       *Histogram
	LLMCallDuration       *Histogram
	IngestDuration        *Histogram
	RequestDuration       *Histogram
	DatabaseQueryDuration *Histogram
	SampleTextBytes       *Histogram
}

// startTime records when metrics were initialized.
var startTime = time.Now()

// NewTrustdMetrics creates and registers all trustd metrics.
func NewTrustdMetrics(registry *Registry) *TrustdMetrics {
	if registry == nil {
		registry = Default()
	}

	m := &TrustdMetrics{
		registry: registry,

		// Counters
		SamplesIngested: registry.RegisterCounter(
			"samples_ingested_total",
			"Total number of log samples accepted",
			nil,
		),
		DetectionsShort: registry.RegisterCounter(
			"detections_total_short",
			"Total number of detections short-circuited on text length",
			Labels{"method": "too-short"},
		),
		DetectionsHybrid: registry.RegisterCounter(
			"detections_total_hybrid",
			"Total number of detections resolved by the local tiers",
			Labels{"method": "hybrid-local+pattern"},
		),
		DetectionsLLM: registry.RegisterCounter(
			"detections_total_llm",
			"Total number of detections refined by the LLM",
			Labels{"method": "hybrid+llm"},
		),
		LLMEscalations: registry.RegisterCounter(
			"llm_escalations_total",
			"Total number of uncertain verdicts escalated to the LLM",
			nil,
		),
		LLMFailures: registry.RegisterCounter(
			"llm_failures_total",
			"Total number of failed LLM classification calls",
			nil,
		),
		ClusterUpdates: registry.RegisterCounter(
			"cluster_updates_total",
			"Total number of pattern centroids written",
			nil,
		),
		IngestRuns: registry.RegisterCounter(
			"ingest_runs_total",
			"Total number of cluster ingest runs",
			nil,
		),
		IngestFailures: registry.RegisterCounter(
			"ingest_failures_total",
			"Total number of ingest runs that reported errors",
			nil,
		),
		EffortScores: registry.RegisterCounter(
			"effort_scores_total",
			"Total number of effort recipe evaluations",
			nil,
		),
		RequestsTotal: registry.RegisterCounter(
			"http_requests_total",
			"Total number of HTTP requests served",
			nil,
		),
		RequestErrors: registry.RegisterCounter(
			"http_request_errors_total",
			"Total number of HTTP requests answered with 5xx",
			nil,
		),
		ErrorsTotal: registry.RegisterCounter(
			"errors_total",
			"Total number of errors",
			nil,
		),

		// Gauges
		ClusterCount: registry.RegisterGauge(
			"cluster_count",
			"Number of pattern centroids currently stored",
			nil,
		),
		LastIngestTs: registry.RegisterGauge(
			"last_ingest_timestamp",
			"Unix timestamp of the last completed ingest run",
			nil,
		),
		DatabaseSizeBytes: registry.RegisterGauge(
			"database_size_bytes",
			"Size of the database in bytes",
			nil,
		),
		ActiveRequests: registry.RegisterGauge(
			"active_requests",
			"Number of HTTP requests currently in flight",
			nil,
		),
		UptimeSeconds: registry.RegisterGauge(
			"uptime_seconds",
			"Number of seconds the daemon has been running",
			nil,
		),

		// Histograms
		AnalyzeDuration: registry.RegisterHistogram(
			"analyze_duration_seconds",
			"Duration of detection pipeline runs in seconds",
			nil,
			DurationBuckets,
		),
		LLMCallDuration: registry.RegisterHistogram(
			"llm_call_duration_seconds",
			"Duration of LLM classification calls in seconds",
			nil,
			[]float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		IngestDuration: registry.RegisterHistogram(
			"ingest_duration_seconds",
			"Duration of cluster ingest runs in seconds",
			nil,
			[]float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		),
		RequestDuration: registry.RegisterHistogram(
			"http_request_duration_seconds",
			"Duration of HTTP requests in seconds",
			nil,
			DurationBuckets,
		),
		DatabaseQueryDuration: registry.RegisterHistogram(
			"database_query_duration_seconds",
			"Duration of database queries in seconds",
			nil,
			DurationBuckets,
		),
		SampleTextBytes: registry.RegisterHistogram(
			"sample_text_bytes",
			"Length of analyzed text in bytes",
			nil,
			SizeBuckets,
		),
	}

	return m
}

// RecordSamples records accepted log samples.
func (m *TrustdMetrics) RecordSamples(n int) {
	if n > 0 {
		m.SamplesIngested.Add(uint64(n))
	}
}

// RecordDetection records a completed detection by method.
func (m *TrustdMetrics) RecordDetection(method string, textLen int, duration time.Duration) {
	switch method {
	case "too-short":
		m.DetectionsShort.Inc()
	case "hybrid+llm":
		m.DetectionsLLM.Inc()
	default:
		m.DetectionsHybrid.Inc()
	}
	m.SampleTextBytes.Observe(float64(textLen))
	m.AnalyzeDuration.ObserveDuration(duration)
}

// StartAnalyzeTimer returns a timer for detection pipeline runs.
func (m *TrustdMetrics) StartAnalyzeTimer() *HistogramTimer {
	return m.AnalyzeDuration.Timer()
}

// RecordLLMCall records an LLM classification attempt.
func (m *TrustdMetrics) RecordLLMCall(duration time.Duration, success bool) {
	m.LLMEscalations.Inc()
	m.LLMCallDuration.ObserveDuration(duration)
	if !success {
		m.LLMFailures.Inc()
		m.ErrorsTotal.Inc()
	}
}

// RecordIngestRun records a completed ingest run.
func (m *TrustdMetrics) RecordIngestRun(duration time.Duration, clustersWritten int, failed bool) {
	m.IngestRuns.Inc()
	m.IngestDuration.ObserveDuration(duration)
	if clustersWritten > 0 {
		m.ClusterUpdates.Add(uint64(clustersWritten))
	}
	if failed {
		m.IngestFailures.Inc()
		m.ErrorsTotal.Inc()
	} else {
		m.LastIngestTs.Set(time.Now().Unix())
	}
}

// RecordEffortScore records an effort recipe evaluation.
func (m *TrustdMetrics) RecordEffortScore() {
	m.EffortScores.Inc()
}

// RequestStarted records an HTTP request entering the server.
func (m *TrustdMetrics) RequestStarted() {
	m.RequestsTotal.Inc()
	m.ActiveRequests.Inc()
}

// RequestFinished records an HTTP request leaving the server.
func (m *TrustdMetrics) RequestFinished(status int, duration time.Duration) {
	m.ActiveRequests.Dec()
	m.RequestDuration.ObserveDuration(duration)
	if status >= 500 {
		m.RequestErrors.Inc()
	}
}

// RecordDatabaseQuery records a database query.
func (m *TrustdMetrics) RecordDatabaseQuery(duration time.Duration) {
	m.DatabaseQueryDuration.ObserveDuration(duration)
}

// StartDatabaseQueryTimer returns a timer for database queries.
func (m *TrustdMetrics) StartDatabaseQueryTimer() *HistogramTimer {
	return m.DatabaseQueryDuration.Timer()
}

// RecordError records an error.
func (m *TrustdMetrics) RecordError() {
	m.ErrorsTotal.Inc()
}

// SetClusterCount sets the stored centroid count.
func (m *TrustdMetrics) SetClusterCount(n int64) {
	m.ClusterCount.Set(n)
}

// SetDatabaseSize sets the database size.
func (m *TrustdMetrics) SetDatabaseSize(bytes int64) {
	m.DatabaseSizeBytes.Set(bytes)
}

// UpdateUptime updates the uptime metric.
func (m *TrustdMetrics) UpdateUptime() {
	m.UptimeSeconds.Set(int64(time.Since(startTime).Seconds()))
}

// Snapshot returns a snapshot of key metrics.
func (m *TrustdMetrics) Snapshot() map[string]interface{} {
	m.UpdateUptime()
	return map[string]interface{}{
		"samples_ingested_total": m.SamplesIngested.Value(),
		"llm_escalations_total":  m.LLMEscalations.Value(),
		"llm_failures_total":     m.LLMFailures.Value(),
		"cluster_updates_total":  m.ClusterUpdates.Value(),
		"ingest_runs_total":      m.IngestRuns.Value(),
		"effort_scores_total":    m.EffortScores.Value(),
		"http_requests_total":    m.RequestsTotal.Value(),
		"errors_total":           m.ErrorsTotal.Value(),
		"cluster_count":          m.ClusterCount.Value(),
		"active_requests":        m.ActiveRequests.Value(),
		"uptime_seconds":         m.UptimeSeconds.Value(),
		"analyze_avg_seconds":    m.AnalyzeDuration.Mean(),
		"llm_call_avg_seconds":   m.LLMCallDuration.Mean(),
	}
}

// Global trustd metrics instance.
var defaultTrustdMetrics *TrustdMetrics

// GetMetrics returns the global trustd metrics instance.
func GetMetrics() *TrustdMetrics {
	if defaultTrustdMetrics == nil {
		defaultTrustdMetrics = NewTrustdMetrics(Default())
	}
	return defaultTrustdMetrics
}

// InitMetrics initializes the global trustd metrics with a custom registry.
func InitMetrics(registry *Registry) *TrustdMetrics {
	defaultTrustdMetrics = NewTrustdMetrics(registry)
	return defaultTrustdMetrics
}
