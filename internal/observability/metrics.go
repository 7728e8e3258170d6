// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Settlement metrics
	SettlementRunsTotal *prometheus.CounterVec
	TradesSettled       prometheus.Counter
	OrphanSellsSkipped  prometheus.Counter
	PartialMatches      prometheus.Counter
	SettlementDuration  prometheus.Histogram

	// Capital metrics
	CapitalOperations *prometheus.CounterVec
	CapitalErrors     *prometheus.CounterVec
	ReleaseClamps     prometheus.Counter
	CashCorrections   prometheus.Counter

	// Execution metrics
	ExecutionsSubmitted prometheus.Counter
	ExecutionsFinalized *prometheus.CounterVec
	PollResults         *prometheus.CounterVec
	ReceiptFetchLatency prometheus.Histogram
	PendingExecutions   prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulPoll       prometheus.Gauge
	LastSuccessfulSettlement prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "trade_ledger"
	}

	return &Metrics{
		// Settlement metrics
		SettlementRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "runs_total",
			Help:      "Total number of settlement runs by scope and outcome",
		}, []string{"scope", "status"}),
		TradesSettled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_settled_total",
			Help:      "Total number of sell trades settled with a FIFO snapshot",
		}),
		OrphanSellsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "orphan_sells_skipped_total",
			Help:      "Total number of sells skipped for lack of buy liquidity",
		}),
		PartialMatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "partial_matches_total",
			Help:      "Total number of sells settled against partial buy liquidity",
		}),
		SettlementDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Settlement run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Capital metrics
		CapitalOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capital",
			Name:      "operations_total",
			Help:      "Total number of capital account operations by type",
		}, []string{"operation"}),
		CapitalErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capital",
			Name:      "errors_total",
			Help:      "Total number of rejected capital operations by reason",
		}, []string{"operation", "reason"}),
		ReleaseClamps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capital",
			Name:      "release_clamps_total",
			Help:      "Total number of reservation releases clamped to the reserved balance",
		}),
		CashCorrections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capital",
			Name:      "cash_corrections_total",
			Help:      "Total number of reconciliation corrections applied",
		}),

		// Execution metrics
		ExecutionsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "submitted_total",
			Help:      "Total number of on-chain executions registered",
		}),
		ExecutionsFinalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "finalized_total",
			Help:      "Total number of executions finalized by terminal status",
		}, []string{"status"}),
		PollResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "poll_results_total",
			Help:      "Total number of per-trade poll outcomes by status",
		}, []string{"status"}),
		ReceiptFetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ethereum",
			Name:      "receipt_fetch_latency_seconds",
			Help:      "Receipt RPC fetch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingExecutions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "pending",
			Help:      "Current number of executions still in SUBMITTED state",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of last successful receipt poll cycle",
		}),
		LastSuccessfulSettlement: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last successful settlement run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordPollResults increments the per-status poll outcome counters.
func (m *Metrics) RecordPollResults(statuses map[string]int) {
	for status, n := range statuses {
		m.PollResults.WithLabelValues(status).Add(float64(n))
	}
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
