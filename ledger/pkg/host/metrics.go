package host

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_ledger_transactions_total",
			Help: "Total number of executed transactions",
		},
		[]string{"status"},
	)

	metricTransactionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orerelay_ledger_transaction_duration_seconds",
			Help:    "Duration of transaction execution including lock wait and commit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~1.6s
		},
	)

	metricInstructionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orerelay_ledger_instructions_total",
			Help: "Total number of top-level instructions by program",
		},
		[]string{"program", "status"},
	)
)

const (
	statusSuccess  = "success"
	statusFailed   = "failed"
	statusRejected = "rejected"
	statusError    = "error"
)
