// Package metrics exposes Prometheus instrumentation for the RPC surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RPCCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vibe_rpc_calls_total",
		Help: "RPC procedure invocations by outcome.",
	}, []string{"procedure", "outcome"})

	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vibe_rpc_duration_seconds",
		Help:    "RPC procedure latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"procedure"})
)

// ObserveRPC records one finished procedure call.
func ObserveRPC(procedure, outcome string, seconds float64) {
	RPCCalls.WithLabelValues(procedure, outcome).Inc()
	RPCDuration.WithLabelValues(procedure).Observe(seconds)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
