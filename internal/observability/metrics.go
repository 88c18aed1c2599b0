package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace defines the global prefix for all metrics (e.g., pawmatch_...).
const namespace = "pawmatch"

// lowLatencyBuckets is used for storefront requests, which sit on the page render path.
// Range: 1ms to 500ms.
var lowLatencyBuckets = []float64{.001, .002, .005, .010, .015, .020, .025, .030, .050, .100, .500}

var (
	// -------------------------------------------------------------------------
	// HTTP
	// -------------------------------------------------------------------------

	// HTTPReqDuration measures the latency of HTTP requests.
	// Metric: pawmatch_http_handling_seconds
	HTTPReqDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "handling_seconds",
		Help:      "Time taken to handle HTTP requests",
		Buckets:   lowLatencyBuckets,
	}, []string{"method", "route"})

	// HTTPReqTotal counts the total number of HTTP requests.
	// Metric: pawmatch_http_requests_total
	HTTPReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests",
	}, []string{"method", "route", "code"})

	// -------------------------------------------------------------------------
	// MATCH ENGINE
	// -------------------------------------------------------------------------

	// MatchEvaluations counts engine calls by mode (batch, product) and outcome
	// (matched, unmatched, fallback, limited).
	MatchEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "evaluations_total",
		Help:      "Total match evaluations by mode and outcome",
	}, []string{"mode", "outcome"})

	// -------------------------------------------------------------------------
	// SIDE EFFECTS (analytics, usage metering)
	// -------------------------------------------------------------------------

	// SideEffectsTotal counts dispatched side effects by task and status (success, fail, dropped).
	SideEffectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "tasks_total",
		Help:      "Total asynchronous side effects by task and status",
	}, []string{"task", "status"})

	// SideEffectsInFlight reports tasks currently running.
	SideEffectsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "tasks_in_flight",
		Help:      "Current number of running asynchronous side effects",
	})

	// -------------------------------------------------------------------------
	// DATABASE POOL
	// -------------------------------------------------------------------------

	// DBPoolConnections reports pgxpool connections by state (total, idle, in_use, max).
	DBPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Database pool connections by state",
	}, []string{"state"})

	// DBPoolAcquireCount counts successful connection acquisitions.
	DBPoolAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Total successful connection acquisitions from the pool",
	})

	// DBPoolEmptyAcquireCount counts acquisitions that had to wait for a connection.
	DBPoolEmptyAcquireCount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "database",
		Name:      "pool_empty_acquire_count_total",
		Help:      "Total acquisitions that waited because the pool was empty",
	})

	// -------------------------------------------------------------------------
	// SETTINGS CACHE
	// -------------------------------------------------------------------------

	SettingsCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "cache_hits_total",
		Help:      "Total shop settings cache hits by layer (l1, l2)",
	}, []string{"layer"})

	SettingsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settings",
		Name:      "cache_misses_total",
		Help:      "Total shop settings reads that fell through to the database",
	})
)
