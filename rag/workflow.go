package rag

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/ragflow/graph"
)

// buildConfig holds Build options.
type buildConfig struct {
	retry   *graph.RetryPolicy
	timeout time.Duration
	engine  []graph.Option
}

// BuildOption configures Build.
type BuildOption func(*buildConfig)

// WithNodeRetry wraps every node with policy.
func WithNodeRetry(policy graph.RetryPolicy) BuildOption {
	return func(c *buildConfig) { c.retry = &policy }
}

// WithNodeTimeout bounds each node attempt to d.
func WithNodeTimeout(d time.Duration) BuildOption {
	return func(c *buildConfig) { c.timeout = d }
}

// WithEngineOptions passes options through to graph.Builder.Compile.
func WithEngineOptions(opts ...graph.Option) BuildOption {
	return func(c *buildConfig) { c.engine = append(c.engine, opts...) }
}

// Build compiles the agent's workflow:
//
//	router ─decideGenerationStyle─▶ searchWeb: webSearch | useLLm: retrieveFromDocument
//	retrieveFromDocument ─▶ gradeGeneratedDocuments
//	gradeGeneratedDocuments ─decideToGenerate─▶ searchWeb: webSearch | useLLm: generateAnswerFromContext
//	webSearch ─▶ generateAnswerFromContext ─▶ END
func Build(agent *Agent, opts ...BuildOption) (*graph.Graph, error) {
	if agent == nil {
		return nil, errors.New("rag: nil agent")
	}
	if err := agent.validate(); err != nil {
		return nil, fmt.Errorf("rag: %w", err)
	}
	var cfg buildConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	wrap := func(fn graph.NodeFunc) graph.Node {
		var n graph.Node = fn
		if cfg.timeout > 0 {
			n = graph.WithTimeout(n, cfg.timeout)
		}
		if cfg.retry != nil {
			n = graph.WithRetry(n, *cfg.retry)
		}
		return n
	}

	b := graph.NewBuilder(Channels()...)
	_ = b.AddNode(NodeRouter, wrap(agent.route))
	_ = b.AddNode(NodeRetrieve, wrap(agent.retrieve))
	_ = b.AddNode(NodeGrade, wrap(agent.grade))
	_ = b.AddNode(NodeSearch, wrap(agent.search))
	_ = b.AddNode(NodeGenerate, wrap(agent.generate))
	_ = b.SetEntryPoint(NodeRouter)

	_ = graph.AddConditionalEdges(b, NodeRouter, decideGenerationStyle,
		map[Route]string{
			RouteSearchWeb: NodeSearch,
			RouteUseLLM:    NodeRetrieve,
		},
		graph.Labels(RouteSearchWeb, RouteUseLLM),
	)
	_ = b.AddEdge(NodeRetrieve, NodeGrade)
	_ = graph.AddConditionalEdges(b, NodeGrade, decideToGenerate,
		map[Route]string{
			RouteSearchWeb: NodeSearch,
			RouteUseLLM:    NodeGenerate,
		},
		graph.Labels(RouteSearchWeb, RouteUseLLM),
	)
	_ = b.AddEdge(NodeSearch, NodeGenerate)
	_ = b.AddEdge(NodeGenerate, graph.END)

	return b.Compile(cfg.engine...)
}
