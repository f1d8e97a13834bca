package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued    = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_jobs_enqueued_total", Help: "Jobs admitted to the runner"})
	JobsCompleted   = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_jobs_completed_total", Help: "Jobs finished successfully"})
	JobsFailed      = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_jobs_failed_total", Help: "Jobs that exhausted retries or failed fatally"})
	JobsRequeued    = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_jobs_requeued_stale_total", Help: "Stale processing jobs flipped back to queued"})
	ActiveGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "caseflow_jobs_active", Help: "Jobs currently executing"})
	QueueDepthGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "caseflow_jobs_queue_depth", Help: "Jobs waiting for a concurrency slot"})

	CreditsConsumed = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_credits_consumed_total", Help: "Prepaid credits drawn"})
	CreditsRefunded = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_credits_refunded_total", Help: "Prepaid credits refunded after job failure"})
	QuotaDenials    = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "caseflow_quota_denials_total", Help: "Quota checks denied, by code"}, []string{"code"})

	AlertsSent      = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_alerts_sent_total", Help: "Alerts delivered or logged"})
	AlertsThrottled = prometheus.NewCounter(prometheus.CounterOpts{Name: "caseflow_alerts_throttled_total", Help: "Alerts dropped by throttle"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			JobsRequeued,
			ActiveGauge,
			QueueDepthGauge,
			CreditsConsumed,
			CreditsRefunded,
			QuotaDenials,
			AlertsSent,
			AlertsThrottled,
		)
	})
	return promhttp.Handler()
}
