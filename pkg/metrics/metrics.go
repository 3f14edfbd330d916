// Package metrics provides Prometheus metrics for the fee oracle.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AggregationCyclesTotal counts per-symbol aggregation cycles by outcome.
	AggregationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_cycles_total",
			Help: "Total number of per-symbol aggregation cycles",
		},
		[]string{"symbol", "result"},
	)

	// AggregationDuration is a histogram of per-symbol pipeline duration.
	AggregationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aggregation_duration_seconds",
			Help:    "Duration of a single symbol aggregation pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"symbol"},
	)

	// AggregationFailuresTotal counts failed cycles by reason.
	AggregationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_failures_total",
			Help: "Total number of failed aggregation cycles",
		},
		[]string{"symbol", "reason"},
	)

	// SkippedCyclesTotal counts symbols skipped because a previous pipeline was still running.
	SkippedCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregation_skipped_total",
			Help: "Total number of symbol cycles skipped while still in flight",
		},
		[]string{"symbol"},
	)

	// OutlierRejectionsTotal is a counter of rejected outlier observations.
	OutlierRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outlier_rejections_total",
			Help: "Total number of outlier observations rejected",
		},
		[]string{"symbol", "method"},
	)

	// AnomaliesTotal counts anomalous aggregations.
	AnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anomalies_total",
			Help: "Total number of aggregations flagged as anomalous",
		},
		[]string{"symbol"},
	)

	// LowConfidenceTotal counts records published below the confidence threshold.
	LowConfidenceTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "low_confidence_records_total",
			Help: "Total number of records below the confidence threshold",
		},
		[]string{"symbol"},
	)

	// RecordConfidence is the confidence of the latest record per symbol.
	RecordConfidence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "record_confidence",
			Help: "Confidence of the latest aggregated record",
		},
		[]string{"symbol"},
	)

	// DataQuality exposes the quality dimensions of the latest record.
	DataQuality = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "data_quality",
			Help: "Data quality dimensions of the latest aggregated record",
		},
		[]string{"symbol", "dimension"},
	)

	// SourceWeight is the configured reliability weight of a source.
	SourceWeight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_weight",
			Help: "Reliability weight of a source (0-1)",
		},
		[]string{"source"},
	)

	// ObservationsTotal counts observations accepted at ingestion.
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observations_total",
			Help: "Total number of observations accepted",
		},
		[]string{"source", "kind"},
	)

	// StorageErrorsTotal counts collaborator I/O failures.
	StorageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Total number of storage errors",
		},
		[]string{"store", "op"},
	)

	// NotificationsTotal counts notifier deliveries.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Total number of data:aggregated notifications",
		},
		[]string{"sink", "result"},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)

	// ConfigReloadsTotal counts configuration reload attempts.
	ConfigReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "config_reloads_total",
			Help: "Total number of configuration reloads",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

// Init registers all metrics with the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			AggregationCyclesTotal,
			AggregationDuration,
			AggregationFailuresTotal,
			SkippedCyclesTotal,
			OutlierRejectionsTotal,
			AnomaliesTotal,
			LowConfidenceTotal,
			RecordConfidence,
			DataQuality,
			SourceWeight,
			ObservationsTotal,
			StorageErrorsTotal,
			NotificationsTotal,
			HTTPRequestsTotal,
			HTTPRequestDuration,
			ConfigReloadsTotal,
		)
	})
}

// ServeHTTP serves Prometheus metrics on the specified address and path.
func ServeHTTP(addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordCycle records the outcome and duration of one symbol pipeline.
func RecordCycle(symbol, result string, duration time.Duration) {
	AggregationCyclesTotal.WithLabelValues(symbol, result).Inc()
	AggregationDuration.WithLabelValues(symbol).Observe(duration.Seconds())
}

// RecordFailure records a failed cycle.
func RecordFailure(symbol, reason string) {
	AggregationFailuresTotal.WithLabelValues(symbol, reason).Inc()
}

// RecordSkipped records a cycle skipped because the symbol was busy.
func RecordSkipped(symbol string) {
	SkippedCyclesTotal.WithLabelValues(symbol).Inc()
}

// RecordOutlierRejection records an outlier rejection.
func RecordOutlierRejection(symbol, method string) {
	OutlierRejectionsTotal.WithLabelValues(symbol, method).Inc()
}

// RecordAnomaly records an anomalous aggregation.
func RecordAnomaly(symbol string) {
	AnomaliesTotal.WithLabelValues(symbol).Inc()
}

// RecordLowConfidence records a record published below the confidence threshold.
func RecordLowConfidence(symbol string) {
	LowConfidenceTotal.WithLabelValues(symbol).Inc()
}

// RecordQuality records the confidence and quality dimensions of a record.
func RecordQuality(symbol string, confidence, completeness, freshness, consistency, accuracy float64) {
	RecordConfidence.WithLabelValues(symbol).Set(confidence)
	DataQuality.WithLabelValues(symbol, "completeness").Set(completeness)
	DataQuality.WithLabelValues(symbol, "freshness").Set(freshness)
	DataQuality.WithLabelValues(symbol, "consistency").Set(consistency)
	DataQuality.WithLabelValues(symbol, "accuracy").Set(accuracy)
}

// RecordSourceWeight records the weight of a source.
func RecordSourceWeight(source string, weight float64) {
	SourceWeight.WithLabelValues(source).Set(weight)
}

// RecordObservation records an accepted observation.
func RecordObservation(source, kind string) {
	ObservationsTotal.WithLabelValues(source, kind).Inc()
}

// RecordStorageError records a storage failure.
func RecordStorageError(store, op string) {
	StorageErrorsTotal.WithLabelValues(store, op).Inc()
}

// RecordNotification records a notifier delivery.
func RecordNotification(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	NotificationsTotal.WithLabelValues(sink, result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordConfigReload records a configuration reload attempt.
func RecordConfigReload(ok bool) {
	result := "ok"
	if !ok {
		result = "rejected"
	}
	ConfigReloadsTotal.WithLabelValues(result).Inc()
}
