// Package google implements model.ChatModel on the Gemini API using the
// generative-ai-go SDK.
package google

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/ragflow/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gemini-1.5-flash"

// request is one Gemini call in SDK terms.
type request struct {
	system      string
	temperature *float32
	history     []*genai.Content
	tools       []*genai.Tool
	parts       []genai.Part
}

type generateFunc func(ctx context.Context, req request) (*genai.GenerateContentResponse, error)

// ChatModel is a Gemini-backed model.ChatModel. It is safe for concurrent
// use. Close releases the underlying client.
type ChatModel struct {
	modelName   string
	temperature *float32
	client      *genai.Client
	generate    generateFunc
}

// NewChatModel dials the Gemini API. opts are passed to genai.NewClient.
func NewChatModel(ctx context.Context, apiKey, modelName string, opts ...option.ClientOption) (*ChatModel, error) {
	if modelName == "" {
		modelName = DefaultModel
	}
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	m := &ChatModel{modelName: modelName, client: client}
	m.generate = func(ctx context.Context, req request) (*genai.GenerateContentResponse, error) {
		gm := client.GenerativeModel(modelName)
		if req.system != "" {
			gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
		}
		if req.temperature != nil {
			gm.SetTemperature(*req.temperature)
		}
		gm.Tools = req.tools
		session := gm.StartChat()
		session.History = req.history
		return session.SendMessage(ctx, req.parts...)
	}
	return m, nil
}

// WithTemperature sets the sampling temperature and returns m.
func (m *ChatModel) WithTemperature(t float64) *ChatModel {
	t32 := float32(t)
	m.temperature = &t32
	return m
}

// Name returns the model name sent to the API.
func (m *ChatModel) Name() string {
	return m.modelName
}

// Close closes the Gemini client.
func (m *ChatModel) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

// Chat implements model.ChatModel.
//
// A reply blocked by safety filters is an error, not an empty answer.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	req, err := buildRequest(messages, tools)
	if err != nil {
		return model.ChatOut{}, err
	}
	req.temperature = m.temperature
	resp, err := m.generate(ctx, req)
	if err != nil {
		return model.ChatOut{}, model.ClassifyError("google", err)
	}
	return convertResponse(resp)
}

// buildRequest splits the conversation into system instruction, history and
// the final user turn that SendMessage sends.
func buildRequest(messages []model.Message, tools []model.ToolSpec) (request, error) {
	var (
		req    request
		system []string
		turns  []*genai.Content
	)
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleUser:
			turns = append(turns, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		case model.RoleAssistant:
			turns = append(turns, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			return req, fmt.Errorf("google: unsupported message role %q", msg.Role)
		}
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != "user" {
		return req, fmt.Errorf("google: conversation must end with a user message")
	}

	req.system = strings.Join(system, "\n\n")
	req.history = turns[:len(turns)-1]
	req.parts = turns[len(turns)-1].Parts

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, tool := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  toSchema(tool.Schema),
			})
		}
		req.tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return req, nil
}

// toSchema converts a JSON Schema object into the Gemini schema subset.
// Unsupported keywords are dropped.
func toSchema(js map[string]any) *genai.Schema {
	if js == nil {
		return nil
	}
	s := &genai.Schema{}
	switch js["type"] {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "string":
		s.Type = genai.TypeString
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	}
	if d, ok := js["description"].(string); ok {
		s.Description = d
	}
	if props, ok := js["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}
	if items, ok := js["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}
	s.Required = stringSlice(js["required"])
	s.Enum = stringSlice(js["enum"])
	return s
}

func stringSlice(v any) []string {
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, x := range vs {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return model.ChatOut{}, model.ErrEmptyResponse
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return model.ChatOut{}, &model.ProviderError{
			Provider: "google",
			Code:     "safety_blocked",
			Cause:    fmt.Errorf("response blocked by safety filters"),
		}
	}

	var out model.ChatOut
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if cand.Content == nil {
		return model.ChatOut{}, model.ErrEmptyResponse
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		case *genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	out.Text = text.String()
	return out, nil
}
