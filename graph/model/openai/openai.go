// Package openai implements model.ChatModel on the OpenAI chat completions
// API using the official openai-go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/ragflow/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gpt-4o-mini"

// completions is the part of the SDK client ChatModel calls.
type completions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// ChatModel is an OpenAI-backed model.ChatModel. It is safe for concurrent
// use. Transient failures are retried by the SDK; errors that survive are
// returned as *model.ProviderError.
type ChatModel struct {
	modelName   string
	temperature *float64
	client      completions
}

// NewChatModel creates a ChatModel for modelName. opts are passed to the SDK
// client, e.g. option.WithBaseURL or option.WithMaxRetries.
func NewChatModel(apiKey, modelName string, opts ...option.RequestOption) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &ChatModel{modelName: modelName, client: &client.Chat.Completions}
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
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params, err := m.params(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	completion, err := m.client.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("openai", err)
	}
	return convertCompletion(completion)
}

func (m *ChatModel) params(messages []model.Message, tools []model.ToolSpec) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		case model.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			return params, fmt.Errorf("openai: unsupported message role %q", msg.Role)
		}
	}

	for _, tool := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  shared.FunctionParameters(tool.Schema),
			},
		})
	}
	return params, nil
}

func convertCompletion(c *openai.ChatCompletion) (model.ChatOut, error) {
	if c == nil || len(c.Choices) == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	msg := c.Choices[0].Message
	out := model.ChatOut{
		Text: msg.Content,
		Usage: model.Usage{
			InputTokens:  int(c.Usage.PromptTokens),
			OutputTokens: int(c.Usage.CompletionTokens),
		},
	}
	for _, call := range msg.ToolCalls {
		input := map[string]any{}
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &input); err != nil {
				return model.ChatOut{}, fmt.Errorf("openai: tool call %s arguments: %w", call.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: call.Function.Name, Input: input})
	}
	if out.Text == "" && len(out.ToolCalls) == 0 {
		return model.ChatOut{}, errors.Join(model.ErrEmptyResponse, fmt.Errorf("finish reason %q", c.Choices[0].FinishReason))
	}
	return out, nil
}
