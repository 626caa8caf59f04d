package graph

import (
	"fmt"
	"strings"
)

// EdgeInfo describes one transition of a compiled graph.
type EdgeInfo struct {
	From string
	To   string

	// Label is the decision label for conditional routes, empty for static
	// edges.
	Label string
}

// Conditional reports whether the edge is a conditional route.
func (e EdgeInfo) Conditional() bool {
	return e.Label != ""
}

// Edges lists every transition, ordered by source registration order and,
// within a conditional edge, by label.
func (g *Graph) Edges() []EdgeInfo {
	var out []EdgeInfo
	for _, from := range g.order {
		if to, ok := g.static[from]; ok {
			out = append(out, EdgeInfo{From: from, To: to})
			continue
		}
		if ce, ok := g.conditional[from]; ok {
			for _, label := range sortedKeys(ce.routes) {
				out = append(out, EdgeInfo{From: from, To: ce.routes[label], Label: label})
			}
		}
	}
	return out
}

// Mermaid renders the graph as a Mermaid flowchart.
//
// Static edges are solid arrows, conditional routes are dotted arrows labelled
// with their decision label.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	fmt.Fprintf(&sb, "    __start__([start]) --> %s\n", g.entry)
	for _, e := range g.Edges() {
		to := e.To
		if to == END {
			to = "__end__([end])"
		}
		if e.Conditional() {
			fmt.Fprintf(&sb, "    %s -. %s .-> %s\n", e.From, e.Label, to)
		} else {
			fmt.Fprintf(&sb, "    %s --> %s\n", e.From, to)
		}
	}
	return sb.String()
}
