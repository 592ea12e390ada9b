package ai

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	judgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "evaluator",
		Name:      "judge_duration_seconds",
		Help:      "Duration of AI judge requests",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"provider"})

	judgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "evaluator",
		Name:      "judge_failures_total",
		Help:      "Number of AI judge failures",
	}, []string{"provider"})
)

func observeDuration(provider string, start time.Time) {
	judgeDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

func recordFailure(provider string, span trace.Span, err error) {
	judgeFailures.WithLabelValues(provider).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
