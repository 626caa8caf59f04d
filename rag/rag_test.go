package rag_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/graph/tool"
	"github.com/dshills/ragflow/rag"
	"github.com/dshills/ragflow/retrieval"
)

const question = "What are choices of ANN algorithms for fast MIPS"

var indexed = []retrieval.Document{
	{PageContent: "LSH, ANNOY, HNSW, FAISS and ScaNN are common ANN algorithms for fast MIPS.", Metadata: map[string]string{"source": "blog#1"}},
	{PageContent: "Planning breaks large tasks into subgoals.", Metadata: map[string]string{"source": "blog#2"}},
}

// fixture wires an agent from scripted collaborators.
type fixture struct {
	router    *model.MockChatModel
	grader    *model.MockChatModel
	generator *model.MockChatModel
	web       *tool.Mock
	retrieved []string
}

func reply(text string) model.ChatOut { return model.ChatOut{Text: text} }

// gradeByKeyword answers yes for documents containing keyword.
func gradeByKeyword(keyword string) func([]model.Message) (model.ChatOut, error) {
	return func(msgs []model.Message) (model.ChatOut, error) {
		doc := msgs[len(msgs)-1].Content
		doc = doc[strings.Index(doc, "retrieved document:"):strings.Index(doc, "user question:")]
		if strings.Contains(doc, keyword) {
			return reply(`{"score": "yes"}`), nil
		}
		return reply(`{"score": "no"}`), nil
	}
}

func newFixture(datasource string) *fixture {
	return &fixture{
		router:    &model.MockChatModel{Responses: []model.ChatOut{reply(`{"datasource": "` + datasource + `"}`)}},
		grader:    &model.MockChatModel{Respond: gradeByKeyword("MIPS")},
		generator: &model.MockChatModel{Responses: []model.ChatOut{reply("  Use HNSW or FAISS.  ")}},
		web: &tool.Mock{
			Results: []tool.SearchResult{{Title: "Vector search", URL: "https://example.com/ann"}, {URL: "https://example.com/other"}},
			Pages: map[string]tool.Page{
				"https://example.com/ann": {URL: "https://example.com/ann", Content: "ScaNN is fast."},
			},
		},
	}
}

func (f *fixture) agent() *rag.Agent {
	return &rag.Agent{
		Router: rag.NewRouter(f.router),
		Retriever: retrieval.RetrieverFunc(func(_ context.Context, q string) ([]retrieval.Document, error) {
			f.retrieved = append(f.retrieved, q)
			return slices.Clone(indexed), nil
		}),
		Grader:    rag.NewGrader(f.grader),
		Web:       &rag.WebSearcher{Search: f.web, Scrape: f.web},
		Generator: rag.NewGenerator(f.generator),
	}
}

func run(t *testing.T, g *graph.Graph) ([]string, graph.State, error) {
	t.Helper()
	var (
		nodes []string
		last  graph.State
	)
	for step, err := range g.Stream(context.Background(), rag.NewState(question)) {
		if err != nil {
			return nodes, last, err
		}
		nodes = append(nodes, step.Node)
		last = step.State
	}
	return nodes, last, nil
}

func TestWorkflow(t *testing.T) {
	t.Run("vector store path", func(t *testing.T) {
		f := newFixture("vectorstore")
		g, err := rag.Build(f.agent())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		nodes, final, err := run(t, g)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		want := []string{rag.NodeRouter, rag.NodeRetrieve, rag.NodeGrade, rag.NodeGenerate}
		if !slices.Equal(nodes, want) {
			t.Errorf("nodes = %v, want %v", nodes, want)
		}
		if got := final[rag.ChannelGeneration]; got != "Use HNSW or FAISS." {
			t.Errorf("generation = %q", got)
		}
		if got := final[rag.ChannelGenerationStyle]; got != rag.StyleVectorStore {
			t.Errorf("generationStyle = %q", got)
		}
		docs := final[rag.ChannelDocuments].([]retrieval.Document)
		if len(docs) != 1 || docs[0].Source() != "blog#1" {
			t.Errorf("documents = %+v, want only the MIPS document", docs)
		}
		if !slices.Equal(f.retrieved, []string{question}) {
			t.Errorf("retriever queries = %v", f.retrieved)
		}
		if n := f.grader.CallCount(); n != 2 {
			t.Errorf("grader calls = %d, want 2", n)
		}
		prompt := f.generator.Calls()[0][0].Content
		if !strings.Contains(prompt, indexed[0].PageContent) || strings.Contains(prompt, indexed[1].PageContent) {
			t.Errorf("generator prompt does not hold exactly the relevant context:\n%s", prompt)
		}
		if len(f.web.Queries()) != 0 {
			t.Errorf("web searched on the vector store path")
		}
	})

	t.Run("web search path", func(t *testing.T) {
		f := newFixture("web_search")
		g, err := rag.Build(f.agent())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		nodes, final, err := run(t, g)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		want := []string{rag.NodeRouter, rag.NodeSearch, rag.NodeGenerate}
		if !slices.Equal(nodes, want) {
			t.Errorf("nodes = %v, want %v", nodes, want)
		}
		if got := final[rag.ChannelGenerationStyle]; got != rag.StyleWebSearch {
			t.Errorf("generationStyle = %q", got)
		}
		if !slices.Equal(f.web.Scraped(), []string{"https://example.com/ann"}) {
			t.Errorf("scraped = %v, want first result only", f.web.Scraped())
		}
		docs := final[rag.ChannelDocuments].([]retrieval.Document)
		if len(docs) != 1 || docs[0].PageContent != "ScaNN is fast." || docs[0].Metadata["title"] != "Vector search" {
			t.Errorf("documents = %+v", docs)
		}
		if len(f.retrieved) != 0 || f.grader.CallCount() != 0 {
			t.Errorf("vector store path ran on a web question")
		}
	})

	t.Run("nothing relevant falls back to the web", func(t *testing.T) {
		f := newFixture("vectorstore")
		f.grader.Respond = gradeByKeyword("no such keyword")
		g, err := rag.Build(f.agent())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		nodes, final, err := run(t, g)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		want := []string{rag.NodeRouter, rag.NodeRetrieve, rag.NodeGrade, rag.NodeSearch, rag.NodeGenerate}
		if !slices.Equal(nodes, want) {
			t.Errorf("nodes = %v, want %v", nodes, want)
		}
		docs := final[rag.ChannelDocuments].([]retrieval.Document)
		if len(docs) != 1 || docs[0].Source() != "https://example.com/ann" {
			t.Errorf("documents = %+v, want the scraped page", docs)
		}
	})

	t.Run("grading failure aborts the run", func(t *testing.T) {
		f := newFixture("vectorstore")
		f.grader.Respond = func([]model.Message) (model.ChatOut, error) { return reply("definitely relevant"), nil }
		g, err := rag.Build(f.agent())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		nodes, _, err := run(t, g)
		var nodeErr *graph.NodeError
		if !errors.As(err, &nodeErr) || nodeErr.NodeID != rag.NodeGrade {
			t.Fatalf("err = %v, want NodeError from %s", err, rag.NodeGrade)
		}
		if !errors.Is(err, rag.ErrMalformedReply) {
			t.Errorf("err = %v, want ErrMalformedReply", err)
		}
		if f.generator.CallCount() != 0 {
			t.Errorf("generator ran after a failed grade")
		}
		if len(nodes) != 2 {
			t.Errorf("steps before failure = %v", nodes)
		}
	})

	t.Run("empty search results fail the web node", func(t *testing.T) {
		f := newFixture("web_search")
		f.web.Results = nil
		g, err := rag.Build(f.agent())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		_, _, err = run(t, g)
		if !errors.Is(err, rag.ErrNoSearchResults) {
			t.Errorf("err = %v, want ErrNoSearchResults", err)
		}
	})

	t.Run("step budget", func(t *testing.T) {
		f := newFixture("vectorstore")
		g, err := rag.Build(f.agent(), rag.WithEngineOptions(graph.WithMaxSteps(3)))
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		_, _, err = run(t, g)
		if !errors.Is(err, graph.ErrStepBudgetExceeded) {
			t.Errorf("err = %v, want ErrStepBudgetExceeded", err)
		}
	})

	t.Run("transient model errors are retried", func(t *testing.T) {
		f := newFixture("vectorstore")
		var calls int
		f.generator.Respond = func([]model.Message) (model.ChatOut, error) {
			calls++
			if calls == 1 {
				return model.ChatOut{}, &model.ProviderError{Provider: "mock", Code: "rate_limited", Retryable: true}
			}
			return reply("second time lucky"), nil
		}
		g, err := rag.Build(f.agent(), rag.WithNodeRetry(graph.RetryPolicy{MaxAttempts: 2, Retryable: model.IsRetryable}))
		if err != nil {
			t.Fatalf("Build: %v", err)
		}

		_, final, err := run(t, g)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if final[rag.ChannelGeneration] != "second time lucky" {
			t.Errorf("generation = %q", final[rag.ChannelGeneration])
		}
	})
}

func TestBuild_MissingCollaborators(t *testing.T) {
	if _, err := rag.Build(nil); err == nil {
		t.Error("Build(nil) succeeded")
	}
	_, err := rag.Build(&rag.Agent{Router: rag.NewRouter(&model.MockChatModel{})})
	if err == nil {
		t.Fatal("Build with missing collaborators succeeded")
	}
	for _, want := range []string{"retriever", "grader", "web searcher", "generator"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestBuild_Topology(t *testing.T) {
	g, err := rag.Build(newFixture("vectorstore").agent())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(g.Warnings()) != 0 {
		t.Errorf("warnings = %v", g.Warnings())
	}
	mermaid := g.Mermaid()
	for _, want := range []string{"searchWeb", "useLLm", rag.NodeGenerate} {
		if !strings.Contains(mermaid, want) {
			t.Errorf("mermaid output lacks %q:\n%s", want, mermaid)
		}
	}
}
