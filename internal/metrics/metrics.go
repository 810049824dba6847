// Package metrics exposes the Prometheus collectors of the compliance and analytics engines.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tradesIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trade_compliance_trades_ingested_total",
			Help: "Total number of trades accepted by the ingestion boundary",
		},
	)

	verdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_compliance_verdicts_total",
			Help: "Total number of persisted compliance verdicts",
		},
		[]string{"check", "status"},
	)

	ruleErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_compliance_rule_errors_total",
			Help: "Total number of rule evaluations that produced no verdict",
		},
		[]string{"check"},
	)

	evaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trade_compliance_evaluation_duration_seconds",
			Help:    "Time to evaluate every active rule against one trade",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
	)

	benchmarkResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_compliance_benchmark_resolutions_total",
			Help: "Benchmark returns resolved, by data source",
		},
		[]string{"source"},
	)

	benchmarkFetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_compliance_benchmark_fetch_failures_total",
			Help: "Live market-data fetch failures, by operation",
		},
		[]string{"operation"},
	)

	benchmarkRefreshSymbols = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trade_compliance_benchmark_refresh_symbols",
			Help: "Outcome of the last benchmark refresh run",
		},
		[]string{"result"},
	)

	backgroundFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_compliance_background_failures_total",
			Help: "Background tasks that ended with an error",
		},
		[]string{"task"},
	)
)

// RecordTradeIngested counts an accepted trade.
func RecordTradeIngested() {
	tradesIngested.Inc()
}

// RecordVerdict counts a persisted verdict.
func RecordVerdict(check, status string) {
	verdictsTotal.WithLabelValues(check, status).Inc()
}

// RecordRuleError counts a rule that errored.
func RecordRuleError(check string) {
	ruleErrorsTotal.WithLabelValues(check).Inc()
}

// ObserveEvaluation records the duration of one trade evaluation.
func ObserveEvaluation(d time.Duration) {
	evaluationDuration.Observe(d.Seconds())
}

// RecordBenchmarkResolution counts a benchmark return resolved by source.
func RecordBenchmarkResolution(source string) {
	benchmarkResolutions.WithLabelValues(source).Inc()
}

// Operations that fetch live market data.
const (
	FetchResolve = "resolve"
	FetchRefresh = "refresh"
)

// RecordBenchmarkFetchFailure counts a failed live fetch made by operation.
func RecordBenchmarkFetchFailure(operation string) {
	benchmarkFetchFailures.WithLabelValues(operation).Inc()
}

// SetBenchmarkRefresh records the outcome of a refresh run.
func SetBenchmarkRefresh(updated, failed int) {
	benchmarkRefreshSymbols.WithLabelValues("updated").Set(float64(updated))
	benchmarkRefreshSymbols.WithLabelValues("failed").Set(float64(failed))
}

// RecordBackgroundFailure counts a failed background task.
func RecordBackgroundFailure(task string) {
	backgroundFailures.WithLabelValues(task).Inc()
}
