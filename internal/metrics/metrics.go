// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Weight runs
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ftql",
		Subsystem: "runs",
		Name:      "total",
		Help:      "Total weight runs by outcome",
	}, []string{"status"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ftql",
		Subsystem: "runs",
		Name:      "duration_seconds",
		Help:      "End-to-end weight run duration, market data refresh included",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	LastRunSteps = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ftql",
		Subsystem: "runs",
		Name:      "last_steps",
		Help:      "Number of observed steps in the last successful run",
	})

	LastRunAssets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ftql",
		Subsystem: "runs",
		Name:      "last_assets",
		Help:      "Number of assets, cash included, in the last successful run",
	})

	// Engine
	SolveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ftql",
		Subsystem: "engine",
		Name:      "solve_duration_seconds",
		Help:      "Per-step quadratic program solve duration",
		Buckets:   []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	}, []string{"solver"})

	// Market data
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ftql",
		Subsystem: "feed",
		Name:      "fetch_errors_total",
		Help:      "Market data refresh failures by symbol",
	}, []string{"symbol"})

	CandlesStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ftql",
		Subsystem: "feed",
		Name:      "candles_stored_total",
		Help:      "Candles written to the history database",
	})

	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ftql",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method and status code",
	}, []string{"method", "status"})
)

// ObserveSolve records one per-step solve. Its signature matches the engine's step observer.
func ObserveSolve(solver string, _ int, seconds float64) {
	SolveDuration.WithLabelValues(solver).Observe(seconds)
}
