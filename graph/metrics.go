package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects run and step metrics for compiled graphs.
//
// Metrics exposed (all namespaced with "ragflow_"):
//
//  1. inflight_runs (gauge): runs currently executing.
//  2. step_latency_ms (histogram): node execution time.
//     Labels: node, status (success/error).
//  3. steps_total (counter): completed steps. Labels: node.
//  4. routing_decisions_total (counter): conditional transitions taken.
//     Labels: node, label.
//  5. runs_total (counter): finished runs. Labels: outcome (success, stopped,
//     node_error, routing_error, budget_exceeded, cancelled, engine_error,
//     invalid_input).
//
// Run IDs are not a label.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := graph.NewPrometheusMetrics(registry)
//	g, _ := b.Compile(graph.WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
//
// All methods are safe on a nil receiver, which records nothing.
type PrometheusMetrics struct {
	inflightRuns prometheus.Gauge
	stepLatency  *prometheus.HistogramVec
	steps        *prometheus.CounterVec
	routes       *prometheus.CounterVec
	runs         *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewPrometheusMetrics creates and registers the graph metrics with registry.
// A nil registry means prometheus.DefaultRegisterer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	pm := &PrometheusMetrics{enabled: true}

	pm.inflightRuns = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "ragflow",
		Name:      "inflight_runs",
		Help:      "Number of graph runs currently executing",
	})

	pm.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ragflow",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 30000},
	}, []string{"node", "status"})

	pm.steps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragflow",
		Name:      "steps_total",
		Help:      "Completed graph steps",
	}, []string{"node"})

	pm.routes = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragflow",
		Name:      "routing_decisions_total",
		Help:      "Conditional transitions taken, by source node and decision label",
	}, []string{"node", "label"})

	pm.runs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ragflow",
		Name:      "runs_total",
		Help:      "Finished graph runs by outcome",
	}, []string{"outcome"})

	return pm
}

func (pm *PrometheusMetrics) on() bool {
	if pm == nil {
		return false
	}
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.enabled
}

// RecordStep observes one node execution. Successful executions also count
// toward steps_total.
func (pm *PrometheusMetrics) RecordStep(node, status string, latency time.Duration) {
	if !pm.on() {
		return
	}
	pm.stepLatency.WithLabelValues(node, status).Observe(float64(latency.Milliseconds()))
	if status == "success" {
		pm.steps.WithLabelValues(node).Inc()
	}
}

// RecordRoute counts a conditional transition.
func (pm *PrometheusMetrics) RecordRoute(node, label string) {
	if !pm.on() {
		return
	}
	pm.routes.WithLabelValues(node, label).Inc()
}

// RecordRun counts a finished run.
func (pm *PrometheusMetrics) RecordRun(outcome string) {
	if !pm.on() {
		return
	}
	pm.runs.WithLabelValues(outcome).Inc()
}

// RunStarted increments the in-flight gauge.
func (pm *PrometheusMetrics) RunStarted() {
	if !pm.on() {
		return
	}
	pm.inflightRuns.Inc()
}

// RunFinished decrements the in-flight gauge.
func (pm *PrometheusMetrics) RunFinished() {
	if !pm.on() {
		return
	}
	pm.inflightRuns.Dec()
}

// Disable temporarily disables metric recording.
func (pm *PrometheusMetrics) Disable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = false
}

// Enable re-enables metric recording after Disable.
func (pm *PrometheusMetrics) Enable() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.enabled = true
}

// outcomeOf maps a run error onto the runs_total outcome label.
func outcomeOf(err error) string {
	var (
		nodeErr   *NodeError
		engineErr *EngineError
	)
	switch {
	case errors.Is(err, ErrStepBudgetExceeded):
		return "budget_exceeded"
	case errors.Is(err, ErrRouting):
		return "routing_error"
	case errors.As(err, &nodeErr):
		return "node_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &engineErr):
		return "engine_error"
	default:
		return "invalid_input"
	}
}
