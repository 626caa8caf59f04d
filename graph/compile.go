package graph

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Warning is a non-fatal finding reported by Compile.
type Warning struct {
	// Code is DEAD_END or UNREACHABLE.
	Code string

	// Node is the node the warning is about.
	Node string

	// Message is the human-readable description.
	Message string
}

func (w Warning) String() string {
	return w.Code + ": " + w.Message
}

// Compile validates the builder and returns an immutable, runnable Graph.
//
// Every configuration error is collected, so the returned error lists all of
// them at once; errors.Is(err, ErrInvalidGraph) holds whenever the graph is
// rejected. The fatal checks are:
//
//   - an entry point is set and names a registered node
//   - every edge source is a registered node
//   - every static or conditional destination is END or a registered node
//   - no node is the source of both a static and a conditional edge
//   - channel names are non-empty and unique
//   - labels declared with Labels cover the route map exactly
//
// Nodes without outgoing edges (implicit terminals) and nodes unreachable from
// the entry point are reported as warnings via Graph.Warnings and logged, but
// do not prevent compilation. Cycles are legal.
func (b *Builder) Compile(opts ...Option) (*Graph, error) {
	cfg := defaultEngineConfig()
	errs := slices.Clone(b.errs)

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			errs = append(errs, err)
		}
	}

	channels, err := NewChannels(b.channels...)
	if err != nil {
		errs = append(errs, err)
	}

	switch {
	case b.entry == "":
		errs = append(errs, &ConfigError{Code: "NO_ENTRY_POINT", Message: "entry point not set"})
	case b.nodes[b.entry] == nil:
		errs = append(errs, &ConfigError{
			Code:    "ENTRY_NOT_FOUND",
			Message: "entry point node does not exist: " + b.entry,
			Node:    b.entry,
		})
	}

	for _, from := range sortedKeys(b.static) {
		to := b.static[from]
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, unknownSource(from))
		}
		if _, ok := b.conditional[from]; ok {
			errs = append(errs, &ConfigError{
				Code:    "MIXED_EDGE_KINDS",
				Message: "node " + from + " has both a static and a conditional edge",
				Node:    from,
			})
		}
		if !b.isTarget(to) {
			errs = append(errs, &ConfigError{
				Code:    "DANGLING_EDGE",
				Message: fmt.Sprintf("edge %s -> %s targets an unknown node", from, to),
				Node:    from,
			})
		}
	}

	for _, from := range sortedKeys(b.conditional) {
		ce := b.conditional[from]
		if _, ok := b.nodes[from]; !ok {
			errs = append(errs, unknownSource(from))
		}
		for _, label := range sortedKeys(ce.routes) {
			if to := ce.routes[label]; !b.isTarget(to) {
				errs = append(errs, &ConfigError{
					Code:    "DANGLING_EDGE",
					Message: fmt.Sprintf("route %s -[%s]-> %s targets an unknown node", from, label, to),
					Node:    from,
				})
			}
		}
		errs = append(errs, checkLabelCoverage(from, ce)...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Graph{
		channels:    channels,
		nodes:       make(map[string]Node, len(b.nodes)),
		order:       slices.Clone(b.order),
		static:      make(map[string]string, len(b.static)),
		conditional: make(map[string]conditionalEdge, len(b.conditional)),
		entry:       b.entry,
		cfg:         cfg,
	}
	for name, n := range b.nodes {
		g.nodes[name] = n
	}
	for from, to := range b.static {
		g.static[from] = to
	}
	for from, ce := range b.conditional {
		routes := make(map[string]string, len(ce.routes))
		for label, to := range ce.routes {
			routes[label] = to
		}
		g.conditional[from] = conditionalEdge{
			decide: ce.decide,
			routes: routes,
			labels: slices.Clone(ce.labels),
		}
	}

	g.warnings = g.lint()
	for _, w := range g.warnings {
		cfg.logger.Warn("graph compiled with warning", "code", w.Code, "node", w.Node, "msg", w.Message)
	}
	return g, nil
}

func (b *Builder) isTarget(name string) bool {
	if name == END {
		return true
	}
	_, ok := b.nodes[name]
	return ok
}

func unknownSource(from string) error {
	return &ConfigError{
		Code:    "UNKNOWN_SOURCE",
		Message: "edge source node does not exist: " + from,
		Node:    from,
	}
}

// checkLabelCoverage compares a declared label universe with the route map.
// Without a Labels option there is nothing to compare against.
func checkLabelCoverage(from string, ce conditionalEdge) []error {
	if ce.labels == nil {
		return nil
	}
	if len(ce.labels) == 0 {
		return []error{&ConfigError{
			Code:    "EMPTY_LABELS",
			Message: "conditional edge from " + from + " declares an empty label set",
			Node:    from,
		}}
	}

	declared := make(map[string]bool, len(ce.labels))
	for _, l := range ce.labels {
		declared[l] = true
	}

	var missing, extra []string
	for _, l := range ce.labels {
		if _, ok := ce.routes[l]; !ok {
			missing = append(missing, l)
		}
	}
	for _, l := range sortedKeys(ce.routes) {
		if !declared[l] {
			extra = append(extra, l)
		}
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, &ConfigError{
			Code:    "LABEL_COVERAGE",
			Message: fmt.Sprintf("conditional edge from %s has no route for labels %s", from, strings.Join(missing, ", ")),
			Node:    from,
		})
	}
	if len(extra) > 0 {
		errs = append(errs, &ConfigError{
			Code:    "LABEL_COVERAGE",
			Message: fmt.Sprintf("conditional edge from %s routes undeclared labels %s", from, strings.Join(extra, ", ")),
			Node:    from,
		})
	}
	return errs
}

// lint finds dead ends and nodes unreachable from the entry point.
func (g *Graph) lint() []Warning {
	var warnings []Warning

	for _, name := range g.order {
		_, hasStatic := g.static[name]
		_, hasCond := g.conditional[name]
		if !hasStatic && !hasCond {
			warnings = append(warnings, Warning{
				Code:    "DEAD_END",
				Node:    name,
				Message: "node " + name + " has no outgoing edge and ends the run implicitly",
			})
		}
	}

	reached := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, next := range g.successors(name) {
			if next == END || reached[next] {
				continue
			}
			reached[next] = true
			queue = append(queue, next)
		}
	}
	for _, name := range g.order {
		if !reached[name] {
			warnings = append(warnings, Warning{
				Code:    "UNREACHABLE",
				Node:    name,
				Message: "node " + name + " is not reachable from entry point " + g.entry,
			})
		}
	}
	return warnings
}

func (g *Graph) successors(name string) []string {
	if to, ok := g.static[name]; ok {
		return []string{to}
	}
	ce, ok := g.conditional[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(ce.routes))
	for _, label := range sortedKeys(ce.routes) {
		out = append(out, ce.routes[label])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
