package graph

import "errors"

// Builder collects nodes, edges and the entry point of a workflow graph.
//
// Builder methods record configuration errors as they happen and also return
// them, so callers may check each call or simply let Compile report the full
// list. A Builder is not safe for concurrent use; build on one goroutine,
// compile once, then share the resulting Graph.
//
// Example:
//
//	b := graph.NewBuilder(
//	    graph.ReplaceChannel("question"),
//	    graph.ReplaceChannel("documents"),
//	)
//	_ = b.AddNode("retrieve", retrieveNode)
//	_ = b.AddNode("generate", generateNode)
//	_ = b.SetEntryPoint("retrieve")
//	_ = b.AddEdge("retrieve", "generate")
//	_ = b.AddEdge("generate", graph.END)
//
//	g, err := b.Compile(graph.WithMaxSteps(50))
type Builder struct {
	channels    []Channel
	nodes       map[string]Node
	order       []string
	static      map[string]string
	conditional map[string]conditionalEdge
	entry       string
	errs        []error
}

// NewBuilder starts a graph over the given channel set.
func NewBuilder(channels ...Channel) *Builder {
	return &Builder{
		channels:    channels,
		nodes:       make(map[string]Node),
		static:      make(map[string]string),
		conditional: make(map[string]conditionalEdge),
	}
}

func (b *Builder) record(err error) error {
	b.errs = append(b.errs, err)
	return err
}

// AddNode registers a node under a unique, non-empty name.
//
// Returns error if:
//   - name is empty or equal to END
//   - node is nil
//   - a node with this name already exists
func (b *Builder) AddNode(name string, node Node) error {
	if name == "" {
		return b.record(&ConfigError{Code: "INVALID_NODE", Message: "node name cannot be empty"})
	}
	if name == END {
		return b.record(&ConfigError{Code: "INVALID_NODE", Message: "node name " + END + " is reserved", Node: name})
	}
	if node == nil {
		return b.record(&ConfigError{Code: "INVALID_NODE", Message: "node cannot be nil: " + name, Node: name})
	}
	if _, exists := b.nodes[name]; exists {
		return b.record(&ConfigError{Code: "DUPLICATE_NODE", Message: "duplicate node name: " + name, Node: name})
	}

	b.nodes[name] = node
	b.order = append(b.order, name)
	return nil
}

// SetEntryPoint names the first node executed by every run.
//
// Existence is checked by Compile so the entry point may be set before the
// node is added.
func (b *Builder) SetEntryPoint(name string) error {
	if name == "" || name == END {
		return b.record(&ConfigError{Code: "INVALID_ENTRY_POINT", Message: "entry point must name a node", Node: name})
	}
	b.entry = name
	return nil
}

// AddEdge registers a static transition: to always follows from.
func (b *Builder) AddEdge(from, to string) error {
	if from == "" {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "from node name cannot be empty"})
	}
	if from == END {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "END cannot be an edge source", Node: from})
	}
	if to == "" {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "to node name cannot be empty", Node: from})
	}
	if existing, ok := b.static[from]; ok {
		return b.record(&ConfigError{
			Code:    "DUPLICATE_EDGE",
			Message: "node " + from + " already has a static edge to " + existing,
			Node:    from,
		})
	}

	b.static[from] = to
	return nil
}

func (b *Builder) addConditional(from string, ce conditionalEdge) error {
	if from == "" {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "from node name cannot be empty"})
	}
	if from == END {
		return b.record(&ConfigError{Code: "INVALID_EDGE", Message: "END cannot be an edge source", Node: from})
	}
	if _, ok := b.conditional[from]; ok {
		return b.record(&ConfigError{
			Code:    "DUPLICATE_EDGE",
			Message: "node " + from + " already has conditional edges",
			Node:    from,
		})
	}

	b.conditional[from] = ce
	return nil
}

// Err returns every configuration error recorded so far, joined.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}
