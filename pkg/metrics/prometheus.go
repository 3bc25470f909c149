// Package metrics exposes Prometheus metrics for dispatch and execution.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	actionExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actiond_action_executions_total",
			Help: "Total number of finalized action executions",
		},
		[]string{"action_type", "status"},
	)

	actionExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actiond_action_execution_duration_seconds",
			Help:    "Action execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"action_type"},
	)

	triggerDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actiond_trigger_dispatches_total",
			Help: "Total number of trigger events dispatched",
		},
		[]string{"source_type"},
	)

	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actiond_dispatch_outcomes_total",
			Help: "Per-mapping dispatch outcomes (executed, failed, skipped)",
		},
		[]string{"outcome"},
	)

	retrySweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actiond_retry_sweep_total",
			Help: "Executions retried or swept by the scheduler",
		},
		[]string{"kind"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actiond_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actiond_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordExecution records one finalized execution.
func RecordExecution(actionType, status string, duration time.Duration) {
	actionExecutionsTotal.WithLabelValues(actionType, status).Inc()
	actionExecutionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

// RecordDispatch records one trigger event and its per-mapping outcomes.
func RecordDispatch(sourceType string, executed, failed, skipped int) {
	if sourceType == "" {
		sourceType = "unknown"
	}

	triggerDispatchesTotal.WithLabelValues(sourceType).Inc()
	dispatchOutcomesTotal.WithLabelValues("executed").Add(float64(executed))
	dispatchOutcomesTotal.WithLabelValues("failed").Add(float64(failed))
	dispatchOutcomesTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordRetry counts scheduler work; kind is "retried" or "swept".
func RecordRetry(kind string, n int) {
	retrySweepTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordHTTPRequest records an HTTP request under its route pattern.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, statusClass(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}

	return strconv.Itoa(status/100) + "xx"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
