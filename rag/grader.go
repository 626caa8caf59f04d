package rag

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/retrieval"
)

// Grader scores retrieved documents for relevance to a question.
type Grader struct {
	Model  model.ChatModel
	Prompt *Prompt

	// Concurrency bounds parallel grading calls. Values below one grade
	// sequentially.
	Concurrency int

	// UseTools offers GradeTool to the model and reads its call arguments.
	UseTools bool
}

// NewGrader returns a sequential Grader using GraderPrompt.
func NewGrader(m model.ChatModel) *Grader {
	return &Grader{Model: m, Prompt: GraderPrompt, Concurrency: 1}
}

// Grade reports whether doc is relevant to question.
func (g *Grader) Grade(ctx context.Context, question string, doc retrieval.Document) (bool, error) {
	msgs, err := g.Prompt.Messages(map[string]string{
		"question": question,
		"document": doc.PageContent,
	})
	if err != nil {
		return false, err
	}
	var spec *model.ToolSpec
	if g.UseTools {
		spec = &GradeTool
	}
	var reply struct {
		Score string `json:"score"`
	}
	if err := structuredReply(ctx, g.Model, msgs, spec, &reply); err != nil {
		return false, fmt.Errorf("grade document: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(reply.Score), "yes"), nil
}

// Filter keeps the documents graded relevant, in their original order. A
// single failed grade fails the whole call.
func (g *Grader) Filter(ctx context.Context, question string, docs []retrieval.Document) ([]retrieval.Document, error) {
	keep := make([]bool, len(docs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(max(g.Concurrency, 1))
	for i, doc := range docs {
		eg.Go(func() error {
			ok, err := g.Grade(ctx, question, doc)
			if err != nil {
				return fmt.Errorf("document %d: %w", i, err)
			}
			keep[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	relevant := make([]retrieval.Document, 0, len(docs))
	for i, doc := range docs {
		if keep[i] {
			relevant = append(relevant, doc)
		}
	}
	return relevant, nil
}
