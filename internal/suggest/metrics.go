package suggest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// suggestionsTotal counts resolved suggestions by source and fallback reason
	suggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_suggestions_total",
		Help: "Total suggestions by source and reason",
	}, []string{"source", "reason"})

	// suggestionLatency tracks time from request to resolution
	suggestionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coach_suggestion_seconds",
		Help:    "Suggestion latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"source"})

	bridgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_engine_failures_total",
		Help: "Engine handles marked failed, by cause",
	}, []string{"cause"})
)

func observe(res Result) {
	suggestionsTotal.WithLabelValues(string(res.Source), res.Reason).Inc()
	suggestionLatency.WithLabelValues(string(res.Source)).Observe(res.Latency.Seconds())
}
