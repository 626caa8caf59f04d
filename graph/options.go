package graph

import (
	"errors"
	"log/slog"

	"github.com/dshills/ragflow/graph/emit"
	"github.com/dshills/ragflow/graph/store"
)

// DefaultStepBudget is the number of node executions a run may perform when
// neither WithMaxSteps nor WithStepBudget says otherwise.
const DefaultStepBudget = 50

// Option is a functional option for configuring a compiled Graph.
//
// Example:
//
//	g, err := b.Compile(
//	    graph.WithMaxSteps(25),
//	    graph.WithEmitter(emit.NewLogEmitter(logger)),
//	    graph.WithMetrics(graph.NewPrometheusMetrics(registry)),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are frozen into a Graph.
type engineConfig struct {
	maxSteps int
	emitter  emit.Emitter
	store    store.Store[State]
	metrics  *PrometheusMetrics
	logger   *slog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		maxSteps: DefaultStepBudget,
		emitter:  emit.NewNullEmitter(),
		logger:   slog.New(slog.DiscardHandler),
	}
}

// WithMaxSteps sets the default step budget for every run of the graph.
//
// A run that still has a node to execute after n steps fails with a
// StepBudgetError. Loops such as A → B → A are legal; the budget is what
// stops one whose exit condition never fires.
//
// Zero is allowed and fails every run before its first node. Negative values
// are rejected.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n < 0 {
			return &ConfigError{Code: "INVALID_STEP_BUDGET", Message: "max steps cannot be negative"}
		}
		cfg.maxSteps = n
		return nil
	}
}

// WithEmitter sets the destination for run events (node_start, node_end,
// route, run_complete, run_error). The default drops every event.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		if e == nil {
			return &ConfigError{Code: "INVALID_OPTION", Message: "emitter cannot be nil"}
		}
		cfg.emitter = e
		return nil
	}
}

// WithStore persists the state after every step.
//
// A SaveStep failure ends the run with an EngineError coded STORE_ERROR.
func WithStore(s store.Store[State]) Option {
	return func(cfg *engineConfig) error {
		if s == nil {
			return &ConfigError{Code: "INVALID_OPTION", Message: "store cannot be nil"}
		}
		cfg.store = s
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	g, _ := b.Compile(graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.metrics = m
		return nil
	}
}

// WithLogger sets the structured logger used for compile warnings and run
// outcomes. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if l == nil {
			return &ConfigError{Code: "INVALID_OPTION", Message: "logger cannot be nil"}
		}
		cfg.logger = l
		return nil
	}
}

// RunOption configures a single Stream or Invoke call.
type RunOption func(*runConfig)

type runConfig struct {
	budget  int
	runID   string
	emitter emit.Emitter
}

// WithStepBudget overrides the graph's step budget for one run.
func WithStepBudget(n int) RunOption {
	return func(rc *runConfig) {
		rc.budget = n
	}
}

// WithRunID sets the run identifier used for events, metrics, logs and the
// step store. By default every run gets a fresh UUID.
func WithRunID(id string) RunOption {
	return func(rc *runConfig) {
		rc.runID = id
	}
}

// WithRunEmitter sends this run's events to e in addition to the graph's
// emitter. The CLI server uses it to stream one request's progress.
func WithRunEmitter(e emit.Emitter) RunOption {
	return func(rc *runConfig) {
		rc.emitter = e
	}
}

func (rc runConfig) validate() error {
	if rc.budget < 0 {
		return &EngineError{
			Code:    "INVALID_STEP_BUDGET",
			Message: "step budget cannot be negative",
			Cause:   errors.New("negative step budget"),
		}
	}
	return nil
}
