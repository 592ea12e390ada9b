package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpRequestsTotal     *prometheus.CounterVec
	httpLatencySeconds    *prometheus.HistogramVec
	httpErrorsTotal       *prometheus.CounterVec
	evaluationsTotal      *prometheus.CounterVec
	evaluationRejected    *prometheus.CounterVec
	consoleSubmissions    *prometheus.CounterVec
	progressClientsActive prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the evaluator.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_evaluator_http_requests_total",
			Help: "Total number of evaluator API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gema_evaluator_http_latency_seconds",
			Help:    "Latency distribution for evaluator API requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_evaluator_http_errors_total",
			Help: "Total number of error responses returned by evaluator endpoints.",
		}, []string{"method", "route", "status"})

		evaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_evaluator_evaluations_total",
			Help: "Completed evaluations partitioned by outcome.",
		}, []string{"outcome"})

		evaluationRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_evaluator_evaluation_rejected_total",
			Help: "Evaluation requests rejected before reaching the judge.",
		}, []string{"reason"})

		consoleSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gema_evaluator_console_submissions_total",
			Help: "Console submissions partitioned by result.",
		}, []string{"result"})

		progressClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gema_evaluator_progress_clients_active",
			Help: "Open console progress websocket connections.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			evaluationsTotal,
			evaluationRejected,
			consoleSubmissions,
			progressClientsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for API error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// EvaluationsTotal counts finished evaluations by outcome (a, b, tie, failed).
func EvaluationsTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsTotal
}

// EvaluationRejected counts uploads refused before judging.
func EvaluationRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationRejected
}

// ConsoleSubmissions counts console submissions.
func ConsoleSubmissions() *prometheus.CounterVec {
	RegisterMetrics()
	return consoleSubmissions
}

// ProgressClientsActive tracks open progress streams.
func ProgressClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return progressClientsActive
}
