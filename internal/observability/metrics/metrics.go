package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "derivatio_"

	resultSuccess = "success"
	resultError   = "error"

	resolveFound    = "found"
	resolveNotFound = "not_found"

	cacheHit  = "hit"
	cacheMiss = "miss"
)

var (
	registerOnce sync.Once

	simulationRunTotal   *prometheus.CounterVec
	simulationRunLatency *prometheus.HistogramVec

	tariffResolveTotal *prometheus.CounterVec
	tariffCacheTotal   *prometheus.CounterVec
	integrityWarnings  *prometheus.CounterVec

	simulationExportTotal   *prometheus.CounterVec
	simulationExportLatency *prometheus.HistogramVec

	schedulerRunTotal   *prometheus.CounterVec
	schedulerRunLatency *prometheus.HistogramVec
)

// Init registers metrics and, when db is set, DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		simulationRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulation_runs_total",
				Help: "Total simulation runs by mode and result",
			},
			[]string{"mode", "result"},
		)
		simulationRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "simulation_run_latency_seconds",
				Help:    "Simulation run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode", "result"},
		)

		tariffResolveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_resolve_total",
				Help: "Total tariff resolutions by result",
			},
			[]string{"result"},
		)
		tariffCacheTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "tariff_cache_total",
				Help: "Tariff catalog cache lookups by result",
			},
			[]string{"result"},
		)
		integrityWarnings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "data_integrity_warnings_total",
				Help: "Data integrity warnings by kind",
			},
			[]string{"kind"},
		)

		simulationExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "simulation_export_total",
				Help: "Total simulation report exports by format and result",
			},
			[]string{"format", "result"},
		)
		simulationExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "simulation_export_latency_seconds",
				Help:    "Simulation report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		schedulerRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_runs_total",
				Help: "Scheduled simulation batches by result",
			},
			[]string{"result"},
		)
		schedulerRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scheduler_run_latency_seconds",
				Help:    "Scheduled simulation batch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			simulationRunTotal,
			simulationRunLatency,
			tariffResolveTotal,
			tariffCacheTotal,
			integrityWarnings,
			simulationExportTotal,
			simulationExportLatency,
			schedulerRunTotal,
			schedulerRunLatency,
		)

		if db != nil {
			prometheus.MustRegister(newSimulationStatusCollector(db, logger))
		}
	})
}

// ObserveSimulationRun records a simulation run by mode (preview, stored, scheduled).
func ObserveSimulationRun(mode, result string, duration time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if simulationRunTotal != nil {
		simulationRunTotal.WithLabelValues(mode, result).Inc()
	}
	if simulationRunLatency != nil {
		simulationRunLatency.WithLabelValues(mode, result).Observe(duration.Seconds())
	}
}

// IncTariffResolve counts a resolver outcome.
func IncTariffResolve(result string) {
	if result == "" {
		result = resolveFound
	}
	if tariffResolveTotal != nil {
		tariffResolveTotal.WithLabelValues(result).Inc()
	}
}

// IncTariffCache counts a cache hit or miss.
func IncTariffCache(result string) {
	if result == "" {
		result = cacheMiss
	}
	if tariffCacheTotal != nil {
		tariffCacheTotal.WithLabelValues(result).Inc()
	}
}

// IncIntegrityWarning counts a data integrity warning.
func IncIntegrityWarning(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if integrityWarnings != nil {
		integrityWarnings.WithLabelValues(kind).Inc()
	}
}

// ObserveSimulationExport records export latency and result.
func ObserveSimulationExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if simulationExportTotal != nil {
		simulationExportTotal.WithLabelValues(format, result).Inc()
	}
	if simulationExportLatency != nil {
		simulationExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// ObserveSchedulerRun records a scheduled batch.
func ObserveSchedulerRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if schedulerRunTotal != nil {
		schedulerRunTotal.WithLabelValues(result).Inc()
	}
	if schedulerRunLatency != nil {
		schedulerRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	ResolveFound    = resolveFound
	ResolveNotFound = resolveNotFound
	ResolveError    = resultError

	CacheHit  = cacheHit
	CacheMiss = cacheMiss

	ModePreview   = "preview"
	ModeStored    = "stored"
	ModeScheduled = "scheduled"
)
