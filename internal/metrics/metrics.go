// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "erp_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	JournalEntriesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "erp_journal_entries_posted_total",
		Help: "Journal entries moved to Posted, including reversals.",
	})

	CreditChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_credit_checks_total",
		Help: "Credit checks by result (Approved, Warning, Blocked).",
	}, []string{"result"})

	ApprovalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "erp_approval_decisions_total",
		Help: "Approval workflow actions by kind.",
	}, []string{"action"})
)
