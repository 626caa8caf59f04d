package graph_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/graph/emit"
	"github.com/dshills/ragflow/graph/store"
)

// set returns a node that writes value to channel.
func set(channel string, value any) graph.Node {
	return graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		return graph.State{channel: value}, nil
	})
}

// collect drains a stream into its steps and the terminal error.
func collect(seq func(func(graph.Step, error) bool)) ([]graph.Step, error) {
	var steps []graph.Step
	for step, err := range seq {
		if err != nil {
			return steps, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func nodeNames(steps []graph.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Node
	}
	return names
}

func chain(t *testing.T, opts ...graph.Option) *graph.Graph {
	t.Helper()
	b := graph.NewBuilder(graph.ReplaceChannel("value"), graph.AppendChannel("visited"))
	for _, name := range []string{"a", "b", "c"} {
		_ = b.AddNode(name, graph.NodeFunc(func(_ context.Context, s graph.State) (graph.State, error) {
			return graph.State{"value": name, "visited": []string{name}}, nil
		}))
	}
	_ = b.SetEntryPoint("a")
	_ = b.AddEdge("a", "b")
	_ = b.AddEdge("b", "c")
	_ = b.AddEdge("c", graph.END)

	g, err := b.Compile(opts...)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return g
}

func TestStream_StaticChain(t *testing.T) {
	g := chain(t)

	steps, err := collect(g.Stream(context.Background(), graph.State{"value": "init"}))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !slices.Equal(nodeNames(steps), []string{"a", "b", "c"}) {
		t.Errorf("nodes = %v, want [a b c]", nodeNames(steps))
	}
	for i, s := range steps {
		if s.Index != i+1 {
			t.Errorf("step %d has index %d", i, s.Index)
		}
		if s.RunID == "" || s.RunID != steps[0].RunID {
			t.Errorf("step %d has run id %q", i, s.RunID)
		}
	}
	last := steps[len(steps)-1].State
	if last["value"] != "c" {
		t.Errorf("final value = %v, want c", last["value"])
	}
}

func TestStream_SnapshotsDoNotAlias(t *testing.T) {
	g := chain(t)

	steps, err := collect(g.Stream(context.Background(), nil))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	want := [][]string{{"a"}, {"a", "b"}, {"a", "b", "c"}}
	for i, s := range steps {
		got, _ := graph.Get[[]string](s.State, "visited")
		if !slices.Equal(got, want[i]) {
			t.Errorf("step %d visited = %v, want %v", i+1, got, want[i])
		}
	}

	steps[0].State["value"] = "tampered"
	if steps[1].State["value"] != "b" {
		t.Error("mutating one snapshot changed another")
	}
}

func TestStream_BudgetZero(t *testing.T) {
	var ran atomic.Bool
	b := graph.NewBuilder()
	_ = b.AddNode("a", graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		ran.Store(true)
		return nil, nil
	}))
	_ = b.SetEntryPoint("a")
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	steps, err := collect(g.Stream(context.Background(), nil, graph.WithStepBudget(0)))
	if len(steps) != 0 {
		t.Errorf("expected zero steps, got %d", len(steps))
	}
	var budgetErr *graph.StepBudgetError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("error = %v, want StepBudgetError", err)
	}
	if budgetErr.Budget != 0 || budgetErr.Node != "a" {
		t.Errorf("budget error = %+v", budgetErr)
	}
	if !errors.Is(err, graph.ErrStepBudgetExceeded) {
		t.Error("expected errors.Is(err, ErrStepBudgetExceeded)")
	}
	if ran.Load() {
		t.Error("node ran despite zero budget")
	}
}

func TestStream_NegativeBudget(t *testing.T) {
	g := chain(t)

	steps, err := collect(g.Stream(context.Background(), nil, graph.WithStepBudget(-1)))
	if len(steps) != 0 {
		t.Errorf("expected zero steps, got %d", len(steps))
	}
	var engineErr *graph.EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != "INVALID_STEP_BUDGET" {
		t.Errorf("error = %v, want INVALID_STEP_BUDGET", err)
	}
}

type loopRoute string

func TestStream_SelfLoopExhaustsBudget(t *testing.T) {
	for _, budget := range []int{1, 3, 5} {
		b := graph.NewBuilder(graph.AppendChannel("visited"))
		_ = b.AddNode("loop", set("visited", []int{1}))
		_ = b.SetEntryPoint("loop")
		_ = graph.AddConditionalEdges(b, "loop",
			func(context.Context, graph.State) (loopRoute, error) { return "again", nil },
			map[loopRoute]string{"again": "loop", "done": graph.END},
		)
		g, err := b.Compile(graph.WithMaxSteps(budget))
		if err != nil {
			t.Fatalf("Compile() error = %v", err)
		}

		steps, err := collect(g.Stream(context.Background(), nil))
		if len(steps) != budget {
			t.Errorf("budget %d: got %d steps", budget, len(steps))
		}
		if !errors.Is(err, graph.ErrStepBudgetExceeded) {
			t.Errorf("budget %d: error = %v, want ErrStepBudgetExceeded", budget, err)
		}
		if n := len(steps); n > 0 {
			visited, _ := graph.Get[[]int](steps[n-1].State, "visited")
			if len(visited) != budget {
				t.Errorf("budget %d: visited %d times", budget, len(visited))
			}
		}
	}
}

func TestStream_ExactBudgetSucceeds(t *testing.T) {
	g := chain(t, graph.WithMaxSteps(3))

	steps, err := collect(g.Stream(context.Background(), nil))
	if err != nil {
		t.Fatalf("a 3-node chain within a budget of 3 failed: %v", err)
	}
	if len(steps) != 3 {
		t.Errorf("got %d steps", len(steps))
	}

	_, err = collect(g.Stream(context.Background(), nil, graph.WithStepBudget(2)))
	var budgetErr *graph.StepBudgetError
	if !errors.As(err, &budgetErr) || budgetErr.Node != "c" {
		t.Errorf("error = %v, want budget exhausted before c", err)
	}
}

func TestStream_UnmappedLabel(t *testing.T) {
	var after atomic.Int32
	b := graph.NewBuilder(graph.ReplaceChannel("question"))
	_ = b.AddNode("router", set("question", "q"))
	_ = b.AddNode("next", graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		after.Add(1)
		return nil, nil
	}))
	_ = b.SetEntryPoint("router")
	_ = graph.AddConditionalEdges(b, "router",
		func(context.Context, graph.State) (route, error) { return "nowhere", nil },
		map[route]string{routeLeft: "next"},
	)
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	steps, err := collect(g.Stream(context.Background(), nil))
	if len(steps) != 1 || steps[0].Node != "router" {
		t.Errorf("steps = %v, want only router", nodeNames(steps))
	}
	var routingErr *graph.RoutingError
	if !errors.As(err, &routingErr) {
		t.Fatalf("error = %v, want RoutingError", err)
	}
	if routingErr.Node != "router" || routingErr.Label != "nowhere" || routingErr.Step != 1 {
		t.Errorf("routing error = %+v", routingErr)
	}
	if !errors.Is(err, graph.ErrRouting) {
		t.Error("expected errors.Is(err, ErrRouting)")
	}
	if after.Load() != 0 {
		t.Error("a node ran after the routing failure")
	}
}

func TestStream_DecisionError(t *testing.T) {
	cause := errors.New("classifier offline")
	b := graph.NewBuilder()
	_ = b.AddNode("router", noop())
	_ = b.SetEntryPoint("router")
	_ = graph.AddConditionalEdges(b, "router",
		func(context.Context, graph.State) (route, error) { return "", cause },
		map[route]string{routeLeft: graph.END},
	)
	g, _ := b.Compile()

	_, err := g.Invoke(context.Background(), nil)
	if !errors.Is(err, graph.ErrRouting) || !errors.Is(err, cause) {
		t.Errorf("error = %v, want routing error wrapping cause", err)
	}
}

func TestStream_RouterScenario(t *testing.T) {
	type styleRoute string
	const (
		searchWeb styleRoute = "searchWeb"
		useLLM    styleRoute = "useLLm"
	)

	b := graph.NewBuilder(
		graph.ReplaceChannel("question"),
		graph.ReplaceChannel("generationStyle"),
		graph.ReplaceChannel("documents"),
	)
	_ = b.AddNode("router", set("generationStyle", "vectorstore"))
	_ = b.AddNode("webSearch", set("documents", []string{"web"}))
	_ = b.AddNode("retrieve", set("documents", []string{"d1", "d2"}))
	_ = b.SetEntryPoint("router")
	_ = graph.AddConditionalEdges(b, "router",
		func(_ context.Context, s graph.State) (styleRoute, error) {
			if style, _ := graph.Get[string](s, "generationStyle"); style == "websearch" {
				return searchWeb, nil
			}
			return useLLM, nil
		},
		map[styleRoute]string{searchWeb: "webSearch", useLLM: "retrieve"},
		graph.Labels(searchWeb, useLLM),
	)
	_ = b.AddEdge("webSearch", graph.END)
	_ = b.AddEdge("retrieve", graph.END)

	events := emit.NewBufferedEmitter()
	g, err := b.Compile(graph.WithEmitter(events))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	steps, err := collect(g.Stream(context.Background(), graph.State{"question": "ann?"}, graph.WithRunID("router-run")))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !slices.Equal(nodeNames(steps), []string{"router", "retrieve"}) {
		t.Errorf("nodes = %v, want [router retrieve]", nodeNames(steps))
	}

	routes := events.GetHistoryWithFilter("router-run", emit.HistoryFilter{Msg: emit.Route})
	if len(routes) != 1 || routes[0].Meta["label"] != "useLLm" || routes[0].Meta["to"] != "retrieve" {
		t.Errorf("route events = %+v", routes)
	}
}

func TestStream_GradingScenario(t *testing.T) {
	type genRoute string

	b := graph.NewBuilder(graph.ReplaceChannel("documents"), graph.ReplaceChannel("generation"))
	_ = b.AddNode("grade", graph.NodeFunc(func(_ context.Context, s graph.State) (graph.State, error) {
		docs, _ := graph.Get[[]string](s, "documents")
		var kept []string
		for _, d := range docs {
			if d == "d1" {
				kept = append(kept, d)
			}
		}
		return graph.State{"documents": kept}, nil
	}))
	_ = b.AddNode("webSearch", set("documents", []string{"web"}))
	_ = b.AddNode("generate", set("generation", "answer"))
	_ = b.SetEntryPoint("grade")
	_ = graph.AddConditionalEdges(b, "grade",
		func(_ context.Context, s graph.State) (genRoute, error) {
			if docs, _ := graph.Get[[]string](s, "documents"); len(docs) == 0 {
				return "searchWeb", nil
			}
			return "useLLm", nil
		},
		map[genRoute]string{"searchWeb": "webSearch", "useLLm": "generate"},
	)
	_ = b.AddEdge("webSearch", "generate")
	_ = b.AddEdge("generate", graph.END)
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	steps, err := collect(g.Stream(context.Background(), graph.State{"documents": []string{"d1", "d2"}}))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !slices.Equal(nodeNames(steps), []string{"grade", "generate"}) {
		t.Errorf("nodes = %v, want [grade generate]", nodeNames(steps))
	}
	docs, _ := graph.Get[[]string](steps[0].State, "documents")
	if !slices.Equal(docs, []string{"d1"}) {
		t.Errorf("graded documents = %v, want [d1]", docs)
	}

	steps, err = collect(g.Stream(context.Background(), graph.State{"documents": []string{"d9"}}))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if !slices.Equal(nodeNames(steps), []string{"grade", "webSearch", "generate"}) {
		t.Errorf("nodes = %v, want [grade webSearch generate]", nodeNames(steps))
	}
}

func TestStream_NodeError(t *testing.T) {
	cause := errors.New("retriever unavailable")
	b := graph.NewBuilder()
	_ = b.AddNode("a", noop())
	_ = b.AddNode("b", graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		return nil, cause
	}))
	_ = b.SetEntryPoint("a")
	_ = b.AddEdge("a", "b")
	g, _ := b.Compile()

	steps, err := collect(g.Stream(context.Background(), nil))
	if len(steps) != 1 {
		t.Errorf("expected 1 step before the failure, got %d", len(steps))
	}
	var nodeErr *graph.NodeError
	if !errors.As(err, &nodeErr) {
		t.Fatalf("error = %v, want NodeError", err)
	}
	if nodeErr.NodeID != "b" || nodeErr.Step != 2 || nodeErr.Code != "NODE_FAILED" {
		t.Errorf("node error = %+v", nodeErr)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the node's error to be reachable with errors.Is")
	}
}

func TestStream_MergeError(t *testing.T) {
	b := graph.NewBuilder(graph.ReplaceChannel("question"))
	_ = b.AddNode("a", set("questoin", "typo"))
	_ = b.SetEntryPoint("a")
	g, _ := b.Compile()

	_, err := g.Invoke(context.Background(), nil)
	var nodeErr *graph.NodeError
	if !errors.As(err, &nodeErr) || nodeErr.Code != "MERGE_FAILED" {
		t.Fatalf("error = %v, want MERGE_FAILED", err)
	}
	if !errors.Is(err, graph.ErrUnknownChannel) {
		t.Error("expected errors.Is(err, ErrUnknownChannel)")
	}
}

func TestStream_InvalidInitialState(t *testing.T) {
	g := chain(t)
	_, err := g.Invoke(context.Background(), graph.State{"unknown": 1})
	if !errors.Is(err, graph.ErrUnknownChannel) {
		t.Errorf("error = %v, want ErrUnknownChannel", err)
	}
}

func TestStream_NodeGetsPrivateCopy(t *testing.T) {
	b := graph.NewBuilder(graph.ReplaceChannel("question"))
	_ = b.AddNode("vandal", graph.NodeFunc(func(_ context.Context, s graph.State) (graph.State, error) {
		s["question"] = "overwritten"
		return nil, nil
	}))
	_ = b.SetEntryPoint("vandal")
	g, _ := b.Compile()

	final, err := g.Invoke(context.Background(), graph.State{"question": "original"})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if final["question"] != "original" {
		t.Errorf("question = %v, want original", final["question"])
	}
}

func TestStream_ImplicitTerminal(t *testing.T) {
	b := graph.NewBuilder(graph.ReplaceChannel("generation"))
	_ = b.AddNode("only", set("generation", "done"))
	_ = b.SetEntryPoint("only")
	g, _ := b.Compile()

	final, err := g.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if final["generation"] != "done" {
		t.Errorf("generation = %v", final["generation"])
	}
}

func TestStream_ConsumedTwice(t *testing.T) {
	g := chain(t)
	seq := g.Stream(context.Background(), nil)

	if _, err := collect(seq); err != nil {
		t.Fatalf("first iteration error = %v", err)
	}
	steps, err := collect(seq)
	if len(steps) != 0 || !errors.Is(err, graph.ErrStreamConsumed) {
		t.Errorf("second iteration: %d steps, error %v", len(steps), err)
	}
}

func TestStream_EarlyBreak(t *testing.T) {
	var ran sync.Map
	b := graph.NewBuilder()
	for _, name := range []string{"a", "b"} {
		_ = b.AddNode(name, graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
			ran.Store(name, true)
			return nil, nil
		}))
	}
	_ = b.SetEntryPoint("a")
	_ = b.AddEdge("a", "b")
	g, _ := b.Compile()

	for step := range g.Stream(context.Background(), nil) {
		if step.Node != "a" {
			t.Errorf("unexpected first step %q", step.Node)
		}
		break
	}
	if _, ok := ran.Load("b"); ok {
		t.Error("node b ran after the caller stopped iterating")
	}
}

func TestStream_CancelledContext(t *testing.T) {
	g := chain(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	steps, err := collect(g.Stream(ctx, nil))
	if len(steps) != 0 || !errors.Is(err, context.Canceled) {
		t.Errorf("got %d steps, error %v", len(steps), err)
	}
}

func TestStream_CancelBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := graph.NewBuilder()
	_ = b.AddNode("a", graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		cancel()
		return nil, nil
	}))
	_ = b.AddNode("b", noop())
	_ = b.SetEntryPoint("a")
	_ = b.AddEdge("a", "b")
	g, _ := b.Compile()

	steps, err := collect(g.Stream(ctx, nil))
	if len(steps) != 1 || !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, error %v; want [a] then context.Canceled", nodeNames(steps), err)
	}
}

func TestInvoke_ReturnsLastStateOnError(t *testing.T) {
	b := graph.NewBuilder(graph.ReplaceChannel("value"))
	_ = b.AddNode("a", set("value", 1))
	_ = b.AddNode("b", graph.NodeFunc(func(context.Context, graph.State) (graph.State, error) {
		return nil, errors.New("boom")
	}))
	_ = b.SetEntryPoint("a")
	_ = b.AddEdge("a", "b")
	g, _ := b.Compile()

	last, err := g.Invoke(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if last["value"] != 1 {
		t.Errorf("last state = %v, want value 1", last)
	}
}

func TestStream_ConcurrentRuns(t *testing.T) {
	g := chain(t)
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			final, err := g.Invoke(context.Background(), nil)
			if err != nil {
				errs <- err
				return
			}
			if visited, _ := graph.Get[[]string](final, "visited"); len(visited) != 3 {
				errs <- errors.New("runs leaked state into each other")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestStream_PersistsSteps(t *testing.T) {
	st := store.NewMemStore[graph.State]()
	g := chain(t, graph.WithStore(st))

	if _, err := g.Invoke(context.Background(), nil, graph.WithRunID("persisted")); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	records, err := st.LoadSteps(context.Background(), "persisted")
	if err != nil {
		t.Fatalf("LoadSteps() error = %v", err)
	}
	var nodes []string
	for _, r := range records {
		nodes = append(nodes, r.NodeID)
	}
	if !slices.Equal(nodes, []string{"a", "b", "c"}) {
		t.Errorf("persisted nodes = %v", nodes)
	}
}

type failingStore struct {
	*store.MemStore[graph.State]
}

func (failingStore) SaveStep(context.Context, string, int, string, graph.State) error {
	return errors.New("disk full")
}

func TestStream_StoreFailureIsFatal(t *testing.T) {
	g := chain(t, graph.WithStore(failingStore{store.NewMemStore[graph.State]()}))

	steps, err := collect(g.Stream(context.Background(), nil))
	if len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}
	var engineErr *graph.EngineError
	if !errors.As(err, &engineErr) || engineErr.Code != "STORE_ERROR" {
		t.Errorf("error = %v, want STORE_ERROR", err)
	}
}

func TestStream_Events(t *testing.T) {
	graphEvents := emit.NewBufferedEmitter()
	runEvents := emit.NewBufferedEmitter()
	g := chain(t, graph.WithEmitter(graphEvents))

	if _, err := g.Invoke(context.Background(), nil,
		graph.WithRunID("evented"),
		graph.WithRunEmitter(runEvents),
	); err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	var got []string
	for _, e := range graphEvents.GetHistory("evented") {
		got = append(got, e.Msg+":"+e.NodeID)
	}
	want := []string{
		"node_start:a", "node_end:a",
		"node_start:b", "node_end:b",
		"node_start:c", "node_end:c",
		"run_complete:c",
	}
	if !slices.Equal(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(runEvents.GetHistory("evented")) != len(want) {
		t.Error("run emitter did not receive every event")
	}
}

func TestStream_ErrorEvent(t *testing.T) {
	events := emit.NewBufferedEmitter()
	g := chain(t, graph.WithEmitter(events))

	_, _ = g.Invoke(context.Background(), nil, graph.WithRunID("short"), graph.WithStepBudget(1))

	errs := events.GetHistoryWithFilter("short", emit.HistoryFilter{Msg: emit.RunError})
	if len(errs) != 1 {
		t.Fatalf("expected one run_error event, got %d", len(errs))
	}
	if errs[0].NodeID != "b" {
		t.Errorf("run_error node = %q, want b", errs[0].NodeID)
	}
}
