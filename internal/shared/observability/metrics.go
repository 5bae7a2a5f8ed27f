package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	HydraulicStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquanet_hydraulic_steps_total",
		Help: "Total number of hydraulic solutions computed.",
	})

	QualityStepsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquanet_quality_steps_total",
		Help: "Total number of water quality time steps advanced.",
	})

	SolverIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aquanet_solver_iterations",
		Help:    "Newton trials needed per hydraulic solution.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 40, 100, 200},
	})

	EngineWarningsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquanet_engine_warnings_total",
		Help: "Advisory engine codes raised by hydraulic solutions.",
	}, []string{"code"})

	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "aquanet_active_sessions",
		Help: "Currently open analysis sessions.",
	}, []string{"kind"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aquanet_run_seconds",
		Help:    "Wall time spent on complete simulation runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	ScenarioSamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "aquanet_scenario_samples_total",
		Help: "Monte Carlo samples processed, by outcome.",
	}, []string{"outcome"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquanet_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RerunsThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aquanet_reruns_throttled_total",
		Help: "Watch-triggered reruns skipped by the rate limiter.",
	})

	HistoryWriteSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "aquanet_history_write_seconds",
		Help:    "Latency for persisting one run to the history store.",
		Buckets: prometheus.DefBuckets,
	})
)
