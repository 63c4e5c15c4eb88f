package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded cardinality constants for metric labels.
// These ensure metrics don't have unbounded label values which can cause memory issues.
const (
	// Run failure categories (bounded set)
	RunFailureCanceled      = "canceled"
	RunFailureAborted       = "aborted_cycles"
	RunFailureInvalidConfig = "invalid_config"
	RunFailureNoData        = "no_data"
	RunFailureOther         = "other"

	// Provider error categories (bounded set)
	ProviderErrorTimeout     = "timeout"
	ProviderErrorRateLimit   = "rate_limit"
	ProviderErrorAuth        = "authentication"
	ProviderErrorNetwork     = "network"
	ProviderErrorInvalidReq  = "invalid_request"
	ProviderErrorServerError = "server_error"
	ProviderErrorOther       = "other"
)

// NormalizeRunFailure maps arbitrary failure reasons to bounded set
func NormalizeRunFailure(reason string) string {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "cancel"):
		return RunFailureCanceled
	case strings.Contains(lower, "abort") || strings.Contains(lower, "failed cycles"):
		return RunFailureAborted
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "config"):
		return RunFailureInvalidConfig
	case strings.Contains(lower, "data") || strings.Contains(lower, "history"):
		return RunFailureNoData
	default:
		return RunFailureOther
	}
}

// NormalizeProviderError maps arbitrary error messages to bounded set
func NormalizeProviderError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ProviderErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return ProviderErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return ProviderErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return ProviderErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return ProviderErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ProviderErrorServerError
	default:
		return ProviderErrorOther
	}
}

// Simulation Run Metrics
var (
	// Runs started
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_runs_started_total",
		Help: "Total number of simulation runs started",
	})

	// Runs completed successfully
	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_runs_completed_total",
		Help: "Total number of simulation runs completed successfully",
	})

	// Runs failed, by normalized reason
	RunsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_runs_failed_total",
		Help: "Total number of failed simulation runs by reason",
	}, []string{"reason"})

	// Run duration
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foliosim_run_duration_ms",
		Help:    "Simulation run duration in milliseconds",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	// Currently executing runs
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_active_runs",
		Help: "Number of currently executing simulation runs",
	})

	// Runs by persisted status (updated from the database)
	RunsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "foliosim_runs_by_status",
		Help: "Number of persisted runs by status",
	}, []string{"status"})

	// Last completed run outcome
	LastRunReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_last_run_return_pct",
		Help: "Total return of the most recently completed run in percent",
	})

	LastRunDrawdown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_last_run_drawdown_pct",
		Help: "Max drawdown of the most recently completed run in percent",
	})

	// Aggregates over completed runs (updated from the database)
	AverageRunReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_avg_run_return_pct",
		Help: "Average total return across completed runs in percent",
	})

	BestRunReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_best_run_return_pct",
		Help: "Best total return across completed runs in percent",
	})

	WorstRunReturn = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_worst_run_return_pct",
		Help: "Worst total return across completed runs in percent",
	})
)

// Cycle Metrics
var (
	// Cycles simulated
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_cycles_total",
		Help: "Total number of rebalance cycles simulated",
	})

	// Cycle duration
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "foliosim_cycle_duration_ms",
		Help:    "Rebalance cycle duration in milliseconds",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100},
	})

	// Cycles by detected regime
	RegimeCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_regime_cycles_total",
		Help: "Total cycles by detected market regime",
	}, []string{"regime"})

	// Cycles priced from the synthetic fallback
	SyntheticCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_synthetic_cycles_total",
		Help: "Total cycles that fell back to synthetic prices",
	})

	// Coin selection refreshes
	SelectionRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_selection_refreshes_total",
		Help: "Total momentum selection refreshes",
	})
)

// Capital Protection Metrics
var (
	// Protection status (1 = protected, 0 = invested)
	ProtectionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_protection_active",
		Help: "Capital protection status of the current run (1 = protected, 0 = invested)",
	})

	// Protection entries by market regime at the entry cycle
	ProtectionEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_protection_entries_total",
		Help: "Total protection entries by market regime",
	}, []string{"regime"})

	// Protection exits by market regime at the exit cycle
	ProtectionExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_protection_exits_total",
		Help: "Total protection exits by market regime",
	}, []string{"regime"})
)

// Market Data Metrics
var (
	// Provider request latency
	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foliosim_provider_request_duration_ms",
		Help:    "Market data provider request duration in milliseconds",
		Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"source", "endpoint"})

	// Provider errors by category
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_provider_errors_total",
		Help: "Total market data provider errors by category",
	}, []string{"source", "error_type"})

	// Redis cache hit rate
	RedisCacheHitRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_redis_cache_hit_rate",
		Help: "Redis cache hit rate as a ratio (0.0 to 1.0)",
	})

	// Redis operations
	RedisOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_redis_operations_total",
		Help: "Total number of Redis operations by type",
	}, []string{"operation"})
)

// System Health Metrics
var (
	// API request duration
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foliosim_api_request_duration_ms",
		Help:    "API request duration in milliseconds",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path", "status_code"})

	// HTTP requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status_code"})

	// Errors
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_errors_total",
		Help: "Total number of errors by type",
	}, []string{"type", "component"})

	// Database connections
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_database_connections_active",
		Help: "Number of active database connections",
	})

	DatabaseConnectionsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_database_connections_idle",
		Help: "Number of idle database connections",
	})

	// Database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "foliosim_database_query_duration_ms",
		Help:    "Database query duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"query_type"})

	// NATS messages
	NATSMessagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_nats_messages_published_total",
		Help: "Total number of NATS messages published",
	})

	NATSMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foliosim_nats_messages_received_total",
		Help: "Total number of NATS messages received",
	})

	// Connected WebSocket clients
	WSClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foliosim_ws_clients_connected",
		Help: "Number of connected WebSocket clients",
	})

	// Alert deliveries
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foliosim_alerts_sent_total",
		Help: "Total alerts sent by channel and status",
	}, []string{"channel", "status"})
)

// Helper functions to update metrics

// RecordRunStart records the start of a simulation run
func RecordRunStart() {
	RunsStarted.Inc()
	ActiveRuns.Inc()
}

// RecordRunComplete records a successful run with duration
func RecordRunComplete(durationMs float64) {
	RunsCompleted.Inc()
	ActiveRuns.Dec()
	RunDuration.Observe(durationMs)
}

// RecordRunFailure records a failed run with normalized reason
func RecordRunFailure(reason string, durationMs float64) {
	RunsFailed.WithLabelValues(NormalizeRunFailure(reason)).Inc()
	ActiveRuns.Dec()
	RunDuration.Observe(durationMs)
}

// UpdateLastRun updates the most-recent-run outcome gauges
func UpdateLastRun(totalReturnPct, maxDrawdownPct float64) {
	LastRunReturn.Set(totalReturnPct)
	LastRunDrawdown.Set(maxDrawdownPct)
}

// RecordCycle records a completed rebalance cycle
func RecordCycle(regime string, protected bool, durationMs float64) {
	CyclesTotal.Inc()
	RegimeCycles.WithLabelValues(regime).Inc()
	CycleDuration.Observe(durationMs)

	status := 0.0
	if protected {
		status = 1.0
	}
	ProtectionActive.Set(status)
}

// RecordProtectionEntry records a protection entry in the given market regime
func RecordProtectionEntry(regime string) {
	ProtectionEntries.WithLabelValues(regime).Inc()
}

// RecordProtectionExit records a protection exit in the given market regime
func RecordProtectionExit(regime string) {
	ProtectionExits.WithLabelValues(regime).Inc()
}

// RecordSyntheticCycle records a cycle priced from the synthetic fallback
func RecordSyntheticCycle() {
	SyntheticCycles.Inc()
}

// RecordSelectionRefresh records a momentum selection refresh
func RecordSelectionRefresh() {
	SelectionRefreshes.Inc()
}

// RecordProviderRequest records a market data request with normalized error category
func RecordProviderRequest(source, endpoint string, durationMs float64, err error) {
	ProviderRequestDuration.WithLabelValues(source, endpoint).Observe(durationMs)
	if err != nil {
		errorCategory := NormalizeProviderError(err)
		ProviderErrors.WithLabelValues(source, errorCategory).Inc()
	}
}

// RecordRedisOperation records a Redis operation
func RecordRedisOperation(operation string) {
	RedisOperations.WithLabelValues(operation).Inc()
}

// RecordAPIRequest records an API request with duration
func RecordAPIRequest(method, path, statusCode string, durationMs float64) {
	APIRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationMs)
	HTTPRequests.WithLabelValues(method, path, statusCode).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	Errors.WithLabelValues(errorType, component).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func UpdateDatabaseConnections(active, idle int32) {
	DatabaseConnectionsActive.Set(float64(active))
	DatabaseConnectionsIdle.Set(float64(idle))
}

// RecordDatabaseQuery records a database query
func RecordDatabaseQuery(queryType string, durationMs float64) {
	DatabaseQueryDuration.WithLabelValues(queryType).Observe(durationMs)
}

// RecordNATSPublished records a published NATS message
func RecordNATSPublished() {
	NATSMessagesPublished.Inc()
}

// RecordNATSReceived records a received NATS message
func RecordNATSReceived() {
	NATSMessagesReceived.Inc()
}

// UpdateWSClients updates the connected WebSocket client gauge
func UpdateWSClients(count int) {
	WSClientsConnected.Set(float64(count))
}

// RecordAlert records an alert delivery attempt
func RecordAlert(channel string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	AlertsSent.WithLabelValues(channel, status).Inc()
}
