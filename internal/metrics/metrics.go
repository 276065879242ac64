// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)

	// Runs counts finished solver runs by algorithm and outcome
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_runs_total", Help: "Finished solver runs by algorithm and outcome."},
		[]string{"algorithm", "outcome"},
	)
	// ActiveRuns is the number of runs currently running or paused
	ActiveRuns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "solver_active_runs", Help: "Runs currently running or paused."},
		[]string{"algorithm"},
	)
	// Iterations counts completed iterations (ACO) and generations (GA)
	Iterations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solver_iterations_total", Help: "Completed solver iterations."},
		[]string{"algorithm"},
	)
	// IterationDuration records the compute time of one iteration in seconds
	IterationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solver_iteration_duration_seconds", Help: "Compute time of one solver iteration.", Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10)},
		[]string{"algorithm"},
	)
	// BestCost is the best cost found by the last finished run per algorithm
	BestCost = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "solver_best_cost", Help: "Best solution cost of the last finished run."},
		[]string{"algorithm"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(WebhookLatency)
		Registry.MustRegister(Runs, ActiveRuns, Iterations, IterationDuration, BestCost)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
