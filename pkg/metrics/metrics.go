// Package metrics exports generation counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sa-platform/sa/pkg/models"
)

var generations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sa_generations_total",
		Help: "Terminal outcomes of generation calls by kind and outcome",
	},
	[]string{"kind", "outcome"},
)

var providerDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sa_provider_request_duration_seconds",
		Help:    "Latency of calls to external generation providers",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
	[]string{"provider", "result"},
)

// RecordOutcome adds n to the counter for kind and outcome.
func RecordOutcome(kind models.Kind, outcome models.Outcome, n int) {
	if n <= 0 {
		return
	}
	generations.WithLabelValues(string(kind), string(outcome)).Add(float64(n))
}

// ObserveProvider records how long a provider call took.
func ObserveProvider(provider string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	providerDuration.WithLabelValues(provider, result).Observe(elapsed.Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
