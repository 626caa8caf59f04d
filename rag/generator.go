package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/retrieval"
)

// Generator answers a question from a set of context documents.
type Generator struct {
	Model  model.ChatModel
	Prompt *Prompt
}

// NewGenerator returns a Generator using AnswerPrompt.
func NewGenerator(m model.ChatModel) *Generator {
	return &Generator{Model: m, Prompt: AnswerPrompt}
}

// Generate returns the model's answer. The documents' contents are joined
// with blank lines to form the context.
func (g *Generator) Generate(ctx context.Context, question string, docs []retrieval.Document) (string, error) {
	msgs, err := g.Prompt.Messages(map[string]string{
		"question": question,
		"context":  FormatDocuments(docs),
	})
	if err != nil {
		return "", err
	}
	out, err := g.Model.Chat(ctx, msgs, nil)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

// FormatDocuments joins page contents with blank lines.
func FormatDocuments(docs []retrieval.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.PageContent
	}
	return strings.Join(parts, "\n\n")
}
