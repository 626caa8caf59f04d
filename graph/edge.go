package graph

import "context"

// END is the terminal marker. Routing to END completes the run.
const END = "__end__"

// DecisionFunc inspects the merged state after a node completes and returns a
// label selecting the next node.
//
// L is usually a dedicated string type whose constants are exactly the keys of
// the edge's route map, which keeps the label space closed per decision:
//
//	type StyleRoute string
//
//	const (
//	    RouteSearchWeb StyleRoute = "searchWeb"
//	    RouteUseLLM    StyleRoute = "useLLm"
//	)
type DecisionFunc[L ~string] func(ctx context.Context, state State) (L, error)

// conditionalEdge is the type-erased form stored on the builder and graph.
type conditionalEdge struct {
	decide func(ctx context.Context, state State) (string, error)
	routes map[string]string
	labels []string
}

// ConditionalOption configures a conditional edge.
type ConditionalOption func(*conditionalEdge)

// Labels declares the complete set of labels a decision function can return.
//
// Compile then checks label coverage: every declared label must appear in the
// route map and every route key must be declared.
func Labels[L ~string](labels ...L) ConditionalOption {
	return func(ce *conditionalEdge) {
		ce.labels = make([]string, len(labels))
		for i, l := range labels {
			ce.labels[i] = string(l)
		}
	}
}

// AddConditionalEdges registers a conditional transition out of from.
//
// After from completes and its partial is merged, decide runs against the
// merged state and routes[label] selects the destination node (or END). A
// label missing from routes fails the run with a RoutingError; it is never
// defaulted.
//
// A node is the source of either one static edge or one conditional edge,
// never both. The violation is reported by Compile.
//
// Example:
//
//	err := graph.AddConditionalEdges(b, "router", decideStyle,
//	    map[StyleRoute]string{
//	        RouteSearchWeb: "webSearch",
//	        RouteUseLLM:    "retrieve",
//	    },
//	    graph.Labels(RouteSearchWeb, RouteUseLLM),
//	)
func AddConditionalEdges[L ~string](b *Builder, from string, decide DecisionFunc[L], routes map[L]string, opts ...ConditionalOption) error {
	if decide == nil {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "decision function cannot be nil", Node: from})
	}
	if len(routes) == 0 {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "conditional edge needs at least one route", Node: from})
	}

	ce := conditionalEdge{
		decide: func(ctx context.Context, s State) (string, error) {
			l, err := decide(ctx, s)
			return string(l), err
		},
		routes: make(map[string]string, len(routes)),
	}
	for label, to := range routes {
		ce.routes[string(label)] = to
	}
	for _, opt := range opts {
		opt(&ce)
	}
	return b.addConditional(from, ce)
}
