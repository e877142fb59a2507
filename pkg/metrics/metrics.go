// Package metrics holds the Prometheus collectors for the routing engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Algorithm labels for path computations
const (
	AlgorithmDijkstra    = "dijkstra"
	AlgorithmBellmanFord = "bellman_ford"
)

// Change result labels
const (
	ChangeApplied  = "applied"
	ChangeNotFound = "not_found"
)

var (
	// EdgesAdded counts edge insertions, including overwrites
	EdgesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navisys_edges_added_total",
		Help: "Total edge insertions",
	})

	// PathComputations counts shortest-path runs by algorithm
	PathComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navisys_path_computations_total",
		Help: "Total shortest-path computations by algorithm",
	}, []string{"algorithm"})

	// PathDuration tracks shortest-path latency
	PathDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "navisys_path_computation_duration_seconds",
		Help:    "Shortest-path computation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"algorithm"})

	// RealTimeChanges counts real-time overrides by result
	RealTimeChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "navisys_realtime_changes_total",
		Help: "Real-time weight overrides by result",
	}, []string{"result"})

	// NegativeCycles counts relaxation runs that hit a negative cycle
	NegativeCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "navisys_negative_cycles_total",
		Help: "Relaxation runs that detected a negative-weight cycle",
	})
)

// ObservePath records one computation of the given algorithm started at start
func ObservePath(algorithm string, start time.Time) {
	PathComputations.WithLabelValues(algorithm).Inc()
	PathDuration.WithLabelValues(algorithm).Observe(time.Since(start).Seconds())
}
