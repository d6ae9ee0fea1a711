package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	searchCallsTotal     *prometheus.CounterVec
	searchCallDuration   *prometheus.HistogramVec
	auditOutcomesTotal   *prometheus.CounterVec
	replicationDecisions *prometheus.CounterVec
	recordsCreatedTotal  *prometheus.CounterVec
	reportsTotal         *prometheus.CounterVec
	gatewayMetricsOnce   sync.Once
)

// initializeGatewayMetrics registers the domain metrics on first use
func initializeGatewayMetrics() {
	gatewayMetricsOnce.Do(func() {
		searchCallsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_calls_total",
				Help: "Total number of calls to the full-text index",
			},
			[]string{"index", "outcome"},
		)

		searchCallDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_call_duration_seconds",
				Help:    "Time spent waiting for the full-text index",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"index"},
		)

		auditOutcomesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_proxy_outcomes_total",
				Help: "Mutating requests by audit proxy outcome",
			},
			[]string{"outcome"}, // "forwarded", "denied", "failed"
		)

		replicationDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replication_guard_decisions_total",
				Help: "Change feed subscriptions by guard decision",
			},
			[]string{"filter", "decision"},
		)

		recordsCreatedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_created_total",
				Help: "Record creation requests by content type and result",
			},
			[]string{"content_type", "result"},
		)

		reportsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_reports_total",
				Help: "Analytics reports served by name and status",
			},
			[]string{"report", "status"},
		)

		GetInstance().registry.MustRegister(
			searchCallsTotal,
			searchCallDuration,
			auditOutcomesTotal,
			replicationDecisions,
			recordsCreatedTotal,
			reportsTotal,
		)
	})
}

// RecordSearchCall records one call to the full-text index
func RecordSearchCall(index, outcome string, duration time.Duration) {
	if !businessEnabled() {
		return
	}
	initializeGatewayMetrics()

	searchCallsTotal.WithLabelValues(index, outcome).Inc()
	searchCallDuration.WithLabelValues(index).Observe(duration.Seconds())
}

// RecordAuditOutcome records how the audit proxy resolved a mutating request
func RecordAuditOutcome(outcome string) {
	if !businessEnabled() {
		return
	}
	initializeGatewayMetrics()
	auditOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RecordReplicationDecision records a replication guard accept or reject
func RecordReplicationDecision(filter, decision string) {
	if !businessEnabled() {
		return
	}
	initializeGatewayMetrics()
	replicationDecisions.WithLabelValues(filter, decision).Inc()
}

// RecordRecordCreation records a record creation attempt
func RecordRecordCreation(contentType, result string) {
	if !businessEnabled() {
		return
	}
	initializeGatewayMetrics()
	recordsCreatedTotal.WithLabelValues(contentType, result).Inc()
}

// RecordReport records an analytics report response
func RecordReport(report, status string) {
	if !businessEnabled() {
		return
	}
	initializeGatewayMetrics()
	reportsTotal.WithLabelValues(report, status).Inc()
}
