package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/dshills/ragflow/graph/model"
)

// Prompt renders a single user message from a template.
type Prompt struct {
	tmpl *template.Template
}

// NewPrompt parses text as a text/template.
func NewPrompt(name, text string) (*Prompt, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return &Prompt{tmpl: tmpl}, nil
}

func mustPrompt(name, text string) *Prompt {
	p, err := NewPrompt(name, text)
	if err != nil {
		panic(err)
	}
	return p
}

// Messages renders the prompt with vars.
func (p *Prompt) Messages(vars map[string]string) ([]model.Message, error) {
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, vars); err != nil {
		return nil, fmt.Errorf("render prompt %s: %w", p.tmpl.Name(), err)
	}
	return []model.Message{{Role: model.RoleUser, Content: sb.String()}}, nil
}

// Default prompts.
var (
	RouterPrompt = mustPrompt("router", `You are an expert at routing a user question to a vectorstore or web search.
Use the vectorstore for questions on LLM agents, prompt engineering, and adversarial attacks.
You do not need to be stringent with the keywords in the question related to these topics.
Otherwise, use web-search. Give a binary choice 'web_search' or 'vectorstore' based on the question.
Return a JSON object with a single key 'datasource' and no preamble or explanation.

Question to route: {{.question}}`)

	GraderPrompt = mustPrompt("grader", `You are a grader assessing relevance of a retrieved document to a user question.
If the document contains keywords related to the user question, grade it as relevant.
It does not need to be a stringent test. The goal is to filter out erroneous retrievals.
Give a binary score 'yes' or 'no' to indicate whether the document is relevant to the question.
Provide the binary score as a JSON object with a single key 'score' and no preamble or explanation.

Here is the retrieved document:
{{.document}}

Here is the user question: {{.question}}`)

	AnswerPrompt = mustPrompt("answer", `You are an assistant for question-answering tasks.
Use the following pieces of retrieved context to answer the question.
If you don't know the answer, just say that you don't know.
Use three sentences maximum and keep the answer concise.

Question: {{.question}}

Context: {{.context}}

Answer:`)
)

// ErrMalformedReply is returned when a model reply does not hold the
// expected JSON object.
var ErrMalformedReply = errors.New("rag: malformed model reply")

// parseJSONReply decodes the first JSON object in text into out. Markdown
// code fences and surrounding prose are ignored.
func parseJSONReply(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in %q", ErrMalformedReply, truncate(text, 80))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	return nil
}

// RouteTool is the function the router asks a tool-calling model to call.
var RouteTool = model.ToolSpec{
	Name:        "route_question",
	Description: "Route the question to the vector store or to web search.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"datasource": map[string]any{
				"type": "string",
				"enum": []any{DataSourceWebSearch, DataSourceVectorStore},
			},
		},
		"required": []any{"datasource"},
	},
}

// GradeTool is the function the grader asks a tool-calling model to call.
var GradeTool = model.ToolSpec{
	Name:        "grade_document",
	Description: "Report whether the document is relevant to the question.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type": "string",
				"enum": []any{"yes", "no"},
			},
		},
		"required": []any{"score"},
	},
}

// structuredReply asks m for a JSON object. When spec is non-nil the model is
// offered it as a tool and a matching tool call wins; otherwise the first
// JSON object in the reply text is decoded.
func structuredReply(ctx context.Context, m model.ChatModel, msgs []model.Message, spec *model.ToolSpec, out any) error {
	var tools []model.ToolSpec
	if spec != nil {
		tools = []model.ToolSpec{*spec}
	}
	reply, err := m.Chat(ctx, msgs, tools)
	if err != nil {
		return err
	}
	if spec != nil {
		for _, call := range reply.ToolCalls {
			if call.Name != spec.Name {
				continue
			}
			raw, err := json.Marshal(call.Input)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedReply, err)
			}
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("%w: %s arguments: %w", ErrMalformedReply, spec.Name, err)
			}
			return nil
		}
	}
	return parseJSONReply(reply.Text, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
