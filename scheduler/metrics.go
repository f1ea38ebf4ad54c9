package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the teacher's observability.Metrics shape (CounterVec +
// HistogramVec pairs registered on construction), narrowed to the
// scheduler's own concerns: turns and per-agent runs.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	agentRunsTotal  *prometheus.CounterVec
	agentRunErrors  *prometheus.CounterVec
	agentRunSeconds *prometheus.HistogramVec
}

// NewMetrics registers scheduler metrics on registry. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or a
// process-wide registry in production.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convoy",
			Subsystem: "scheduler",
			Name:      "turns_total",
			Help:      "Total number of turns driven to completion.",
		}, []string{"status"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "convoy",
			Subsystem: "scheduler",
			Name:      "turn_duration_seconds",
			Help:      "Wall-clock duration of one turn.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"status"}),
		agentRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convoy",
			Subsystem: "scheduler",
			Name:      "agent_runs_total",
			Help:      "Total number of agent Run invocations.",
		}, []string{"agent"}),
		agentRunErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "convoy",
			Subsystem: "scheduler",
			Name:      "agent_run_errors_total",
			Help:      "Total number of agent Run invocations that returned an error.",
		}, []string{"agent"}),
		agentRunSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "convoy",
			Subsystem: "scheduler",
			Name:      "agent_run_duration_seconds",
			Help:      "Duration of one agent Run invocation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 15),
		}, []string{"agent"}),
	}

	registry.MustRegister(m.turnsTotal, m.turnDuration, m.agentRunsTotal, m.agentRunErrors, m.agentRunSeconds)
	return m
}
