// Package anthropic implements model.ChatModel on the Anthropic Messages API
// using the official anthropic-sdk-go SDK.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/ragflow/graph/model"
)

const (
	// DefaultModel is used when NewChatModel gets an empty model name.
	DefaultModel = "claude-3-5-haiku-20241022"

	// DefaultMaxTokens bounds the reply length. The Messages API requires it.
	DefaultMaxTokens = 1024
)

type messages interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// ChatModel is an Anthropic-backed model.ChatModel. It is safe for
// concurrent use.
//
// System messages are joined into the request's system prompt; the
// remaining turns are sent in order.
type ChatModel struct {
	modelName   string
	maxTokens   int64
	temperature *float64
	client      messages
}

// NewChatModel creates a ChatModel for modelName. opts are passed to the SDK
// client.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ChatModel{modelName: modelName, maxTokens: DefaultMaxTokens, client: &client.Messages}
}

// WithMaxTokens overrides DefaultMaxTokens and returns m.
func (m *ChatModel) WithMaxTokens(n int64) *ChatModel {
	m.maxTokens = n
	return m
}

// WithTemperature sets the sampling temperature and returns m.
func (m *ChatModel) WithTemperature(t float64) *ChatModel {
	m.temperature = &t
	return m
}

// Name returns the model name sent to the API.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, msgs []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params, err := m.params(msgs, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	resp, err := m.client.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("anthropic", err)
	}
	return convertMessage(resp)
}

func (m *ChatModel) params(msgs []model.Message, tools []model.ToolSpec) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
	}
	if m.temperature != nil {
		params.Temperature = anthropic.Float(*m.temperature)
	}

	var system []string
	for _, msg := range msgs {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return params, fmt.Errorf("anthropic: unsupported message role %q", msg.Role)
		}
	}
	if len(params.Messages) == 0 {
		return params, fmt.Errorf("anthropic: conversation needs at least one user message")
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	for _, tool := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: tool.Schema["properties"]},
			},
		})
	}
	return params, nil
}

func convertMessage(msg *anthropic.Message) (model.ChatOut, error) {
	if msg == nil || len(msg.Content) == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	out := model.ChatOut{
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			input := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &input); err != nil {
					return model.ChatOut{}, fmt.Errorf("anthropic: tool call %s input: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: block.Name, Input: input})
		}
	}
	out.Text = text.String()
	return out, nil
}
