package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/retrieval"
)

// Agent holds the collaborators behind the workflow's nodes.
type Agent struct {
	Router    *Router
	Retriever retrieval.Retriever
	Grader    *Grader
	Web       *WebSearcher
	Generator *Generator
	Logger    *slog.Logger
}

func (a *Agent) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.Logger
}

func (a *Agent) validate() error {
	var errs []error
	if a.Router == nil || a.Router.Model == nil {
		errs = append(errs, errors.New("router model is required"))
	}
	if a.Retriever == nil {
		errs = append(errs, errors.New("retriever is required"))
	}
	if a.Grader == nil || a.Grader.Model == nil {
		errs = append(errs, errors.New("grader model is required"))
	}
	if a.Web == nil || a.Web.Search == nil || a.Web.Scrape == nil {
		errs = append(errs, errors.New("web searcher is required"))
	}
	if a.Generator == nil || a.Generator.Model == nil {
		errs = append(errs, errors.New("generator model is required"))
	}
	return errors.Join(errs...)
}

func (a *Agent) route(ctx context.Context, s graph.State) (graph.State, error) {
	st, err := decodeState(s)
	if err != nil {
		return nil, err
	}
	source, err := a.Router.Route(ctx, st.Question)
	if err != nil {
		return nil, err
	}
	a.logger().InfoContext(ctx, "routed question", "datasource", source)
	return graph.State{ChannelGenerationStyle: styleFor(source)}, nil
}

func (a *Agent) retrieve(ctx context.Context, s graph.State) (graph.State, error) {
	st, err := decodeState(s)
	if err != nil {
		return nil, err
	}
	docs, err := a.Retriever.Retrieve(ctx, st.Question)
	if err != nil {
		return nil, err
	}
	a.logger().InfoContext(ctx, "retrieved documents", "count", len(docs))
	return graph.State{ChannelDocuments: docs}, nil
}

func (a *Agent) grade(ctx context.Context, s graph.State) (graph.State, error) {
	st, err := decodeState(s)
	if err != nil {
		return nil, err
	}
	relevant, err := a.Grader.Filter(ctx, st.Question, st.Documents)
	if err != nil {
		return nil, err
	}
	a.logger().InfoContext(ctx, "graded documents", "relevant", len(relevant), "total", len(st.Documents))
	return graph.State{ChannelDocuments: relevant}, nil
}

func (a *Agent) search(ctx context.Context, s graph.State) (graph.State, error) {
	st, err := decodeState(s)
	if err != nil {
		return nil, err
	}
	docs, err := a.Web.Documents(ctx, st.Question)
	if err != nil {
		return nil, err
	}
	a.logger().InfoContext(ctx, "searched the web", "source", docs[0].Source())
	return graph.State{ChannelDocuments: docs}, nil
}

func (a *Agent) generate(ctx context.Context, s graph.State) (graph.State, error) {
	st, err := decodeState(s)
	if err != nil {
		return nil, err
	}
	answer, err := a.Generator.Generate(ctx, st.Question, st.Documents)
	if err != nil {
		return nil, err
	}
	return graph.State{ChannelGeneration: answer}, nil
}

// decideGenerationStyle follows the router's choice.
func decideGenerationStyle(_ context.Context, s graph.State) (Route, error) {
	style, _ := graph.Get[string](s, ChannelGenerationStyle)
	if style == StyleWebSearch {
		return RouteSearchWeb, nil
	}
	return RouteUseLLM, nil
}

// decideToGenerate falls back to the web when grading left nothing relevant.
func decideToGenerate(_ context.Context, s graph.State) (Route, error) {
	st, err := decodeState(s)
	if err != nil {
		return "", err
	}
	if len(st.Documents) == 0 {
		return RouteSearchWeb, nil
	}
	return RouteUseLLM, nil
}
